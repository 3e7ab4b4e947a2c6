package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/imagebuf"
	nhttp "github.com/chaos-io/bgstrip/util/http"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/time/rate"
)

const (
	BiRefNetModel = "BiRefNet"

	DefaultBaseURL      = "http://127.0.0.1:8188/"
	DefaultPollInterval = 500 * time.Millisecond

	// workflowPlaceholder is the LoadImage input in workflow.json that is
	// replaced by the uploaded file name.
	workflowPlaceholder = "MyImage.png"
)

//go:embed workflow.json
var workflowData []byte

// BiRefNetOptions configures the ComfyUI-backed remover.
type BiRefNetOptions struct {
	BaseURL           string
	PollInterval      time.Duration
	RequestsPerSecond float64
	// MaxPixels bounds the output image accepted from the server.
	MaxPixels int64
	Client    nhttp.IClient
	Logger    *zap.SugaredLogger
}

// BiRefNetRemBG runs a BiRefNet workflow on a ComfyUI server: upload the
// image, queue the prompt, poll the history, download the result.
type BiRefNetRemBG struct {
	baseURL   string
	poll      time.Duration
	maxPixels int64
	cli       nhttp.IClient
	limiter   *rate.Limiter
	logger    *zap.SugaredLogger
}

func NewBiRefNetRemBG(opts BiRefNetOptions) (*BiRefNetRemBG, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Fatal(errors.Newf("invalid BiRefNet base url %q", base))
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	b := &BiRefNetRemBG{
		baseURL:   base,
		poll:      opts.PollInterval,
		maxPixels: opts.MaxPixels,
		cli:       opts.Client,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    opts.Logger,
	}
	if b.poll <= 0 {
		b.poll = DefaultPollInterval
	}
	if b.cli == nil {
		b.cli = nhttp.NewHTTPClient()
	}
	if opts.RequestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	if b.logger == nil {
		b.logger = zap.NewNop().Sugar()
	}
	return b, nil
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, img *imagebuf.RawImage) (*imagebuf.ProcessedImage, error) {
	if err := img.Validate(); err != nil {
		return nil, errors.Mark(err, ErrUnsupportedInput)
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img.ToNRGBA()); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode upload"), ErrInternal)
	}

	name := fmt.Sprintf("bgstrip_%s.png", ksuid.New().String())
	uploaded, err := b.uploadImage(ctx, name, encoded.Bytes())
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded)
	if err != nil {
		return nil, err
	}

	out, err := b.waitForOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	data, err := b.download(ctx, out)
	if err != nil {
		return nil, err
	}

	return b.matte(img, data)
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, name string, data []byte) (*uploadImageResp, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.Wrap(err, "write form file")
	}
	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/upload/image",
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.do(ctx, reqParam); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "upload image"), ErrModelLoad)
	}
	if resp.Name == "" {
		return nil, errors.Mark(errors.New("upload response has no file name"), ErrInternal)
	}

	b.logger.Debugw("uploaded image", "name", resp.Name, "subfolder", resp.Subfolder)
	return resp, nil
}

type promptResp struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors"`
}

/*
	curl -X POST "http://127.0.0.1:8188/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, uploaded *uploadImageResp) (string, error) {
	wk, err := buildWorkflow(uploaded)
	if err != nil {
		return "", errors.Mark(err, ErrInternal)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/prompt",
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]any{"prompt": wk, "client_id": "bgstrip"},
		Response:   resp,
	}
	if err := b.do(ctx, reqParam); err != nil {
		return "", errors.Mark(errors.Wrap(err, "queue prompt"), ErrModelLoad)
	}
	if len(resp.NodeErrors) > 0 {
		return "", errors.Mark(errors.Newf("workflow rejected: %d node errors", len(resp.NodeErrors)), ErrUnsupportedInput)
	}
	if resp.PromptID == "" {
		return "", errors.Mark(errors.New("prompt response has no prompt_id"), ErrInternal)
	}

	b.logger.Debugw("queued prompt", "prompt_id", resp.PromptID, "number", resp.Number)
	return resp.PromptID, nil
}

// buildWorkflow points every LoadImage node at the uploaded file.
func buildWorkflow(uploaded *uploadImageResp) (map[string]any, error) {
	wk := map[string]any{}
	if err := json.Unmarshal(workflowData, &wk); err != nil {
		return nil, errors.Wrap(err, "unmarshal workflow data")
	}

	ref := uploaded.Name
	if uploaded.Subfolder != "" {
		ref = uploaded.Subfolder + "/" + uploaded.Name
	}

	replaced := 0
	for _, node := range wk {
		n, ok := node.(map[string]any)
		if !ok || n["class_type"] != "LoadImage" {
			continue
		}
		inputs, ok := n["inputs"].(map[string]any)
		if !ok || inputs["image"] != workflowPlaceholder {
			continue
		}
		inputs["image"] = ref
		replaced++
	}
	if replaced == 0 {
		return nil, errors.New("workflow has no LoadImage placeholder")
	}
	return wk, nil
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

func (b *BiRefNetRemBG) waitForOutput(ctx context.Context, promptID string) (*outputImage, error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + "api/history/" + url.PathEscape(promptID),
			Method:     "GET",
			Response:   &history,
		}
		if err := b.do(ctx, reqParam); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "poll history"), ErrInternal)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return nil, errors.Mark(errors.Newf("prompt %s failed on server", promptID), ErrInternal)
			}
			if out := firstImage(entry); out != nil {
				return out, nil
			}
			if entry.Status.Completed {
				return nil, errors.Mark(errors.Newf("prompt %s completed without an image", promptID), ErrInternal)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// firstImage picks the output image with the lowest node id so the result
// does not depend on map order.
func firstImage(entry historyEntry) *outputImage {
	var bestNode string
	var best *outputImage
	for node, out := range entry.Outputs {
		if len(out.Images) == 0 {
			continue
		}
		if best == nil || node < bestNode {
			img := out.Images[0]
			bestNode, best = node, &img
		}
	}
	return best
}

func (b *BiRefNetRemBG) download(ctx context.Context, out *outputImage) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", out.Filename)
	q.Set("subfolder", out.Subfolder)
	q.Set("type", out.Type)

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "api/view?" + q.Encode(),
		Method:     "GET",
		Response:   &data,
	}
	if err := b.do(ctx, reqParam); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "download result"), ErrInternal)
	}
	return data, nil
}

// matte decodes the server result and takes only its alpha channel; the
// colour always comes from the source buffer.
func (b *BiRefNetRemBG) matte(src *imagebuf.RawImage, data []byte) (*imagebuf.ProcessedImage, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode result header"), ErrInternal)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 ||
		(b.maxPixels > 0 && int64(cfg.Width) > b.maxPixels/int64(cfg.Height)) {
		return nil, errors.Mark(errors.Newf("result dimensions %dx%d out of bounds", cfg.Width, cfg.Height), ErrInternal)
	}

	out, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode result"), ErrInternal)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, src.Width, src.Height))
	if out.Bounds().Dx() == src.Width && out.Bounds().Dy() == src.Height {
		draw.Draw(rgba, rgba.Bounds(), out, out.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(rgba, rgba.Bounds(), out, out.Bounds(), draw.Src, nil)
	}

	alpha := make([]byte, src.Width*src.Height)
	for i := range alpha {
		alpha[i] = rgba.Pix[i*4+3]
	}
	return src.WithAlpha(alpha)
}

func (b *BiRefNetRemBG) do(ctx context.Context, reqParam *nhttp.RequestParam) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return b.cli.DoHTTPRequest(ctx, reqParam)
}
