package ingest

import (
	"bytes"
	"context"
	"image"
	"io"
	"os"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
)

var (
	errUnknownFormat = errors.New("unknown image format")
	// errSymlinkOpened is returned by openNoFollow when the final path
	// component turned into a symlink after resolution.
	errSymlinkOpened = errors.New("path is a symlink")
)

// Loader performs the bounded decode of a validated file.
type Loader struct {
	guard *Guard
}

func NewLoader() *Loader {
	return &Loader{guard: NewGuard()}
}

// Load opens path without following symlinks, verifies the descriptor is
// the file the Resolver inspected, and decodes it within budget.
func (l *Loader) Load(ctx context.Context, path ValidatedPath, budget Budget) (*imagebuf.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !budget.Valid() {
		return nil, errors.New("decode budget is not initialized")
	}
	name := path.RelPath

	data, err := l.readVerified(path, budget)
	if err != nil {
		return nil, err
	}

	// 1. 按魔数识别格式，扩展名只用于一致性校验
	format := Sniff(data)
	if format == FormatUnknown {
		return nil, rejectf(ReasonUnsupportedFormat, name, "no known image signature, content is %s", describeContent(data))
	}
	claimed, ok := FormatForName(name)
	if !ok {
		return nil, rejectf(ReasonUnsupportedFormat, name, "unsupported extension")
	}
	if claimed != format {
		return nil, rejectf(ReasonFormatMismatch, name, "extension claims %s, content is %s", claimed, format)
	}

	// 2. 只解析文件头，分配像素缓冲之前检查声明的尺寸
	cfg, err := safeDecodeConfig(format, data)
	if err != nil {
		return nil, Reject(ReasonCorruptData, name, err)
	}
	if err := l.guard.CheckDimensions(name, cfg.Width, cfg.Height, budget); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. 完整解码
	img, err := safeDecode(format, data)
	if err != nil {
		return nil, Reject(ReasonCorruptData, name, err)
	}
	b := img.Bounds()
	if b.Dx() > cfg.Width || b.Dy() > cfg.Height {
		return nil, rejectf(ReasonCorruptData, name, "decoded %dx%d larger than declared %dx%d", b.Dx(), b.Dy(), cfg.Width, cfg.Height)
	}
	if err := l.guard.CheckDimensions(name, b.Dx(), b.Dy(), budget); err != nil {
		return nil, err
	}

	return imagebuf.FromImage(img), nil
}

// readVerified opens the file, checks its identity against the resolver's
// metadata and reads at most MaxFileBytes.
func (l *Loader) readVerified(path ValidatedPath, budget Budget) ([]byte, error) {
	name := path.RelPath

	f, err := openNoFollow(path.Path)
	if err != nil {
		if errors.Is(err, errSymlinkOpened) {
			return nil, Reject(ReasonSymlink, name, err)
		}
		return nil, errors.Wrapf(err, "open %s", name)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "fstat %s", name)
	}
	if !info.Mode().IsRegular() {
		return nil, rejectf(ReasonNotRegular, name, "opened descriptor has mode %s", info.Mode().Type())
	}
	if path.Info != nil && !os.SameFile(info, path.Info) {
		return nil, rejectf(ReasonSymlink, name, "file replaced after validation")
	}
	if info.Size() > budget.MaxFileBytes() {
		return nil, rejectf(ReasonSizeExceeded, name, "%d bytes exceeds limit of %d", info.Size(), budget.MaxFileBytes())
	}

	data, err := io.ReadAll(io.LimitReader(f, budget.MaxFileBytes()+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if int64(len(data)) > budget.MaxFileBytes() {
		return nil, rejectf(ReasonSizeExceeded, name, "file grew past limit of %d bytes while reading", budget.MaxFileBytes())
	}
	return data, nil
}

// Decoders for hostile input can panic on malformed data; a panic is
// reported as corrupt data for that file.
func safeDecodeConfig(format Format, data []byte) (cfg image.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg, err = image.Config{}, errors.Newf("decoder panic: %v", r)
		}
	}()
	return decodeConfig(format, bytes.NewReader(data))
}

func safeDecode(format Format, data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, errors.Newf("decoder panic: %v", r)
		}
	}()
	return decode(format, bytes.NewReader(data))
}
