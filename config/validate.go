package config

import (
	"net/url"
	"strings"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/robfig/cron/v3"
)

// Validate checks that the configuration is valid. Every error is fatal.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.Fatal(err)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Input.Dir) == "" {
		return errors.New("input.dir cannot be empty")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}

	if c.Limits.MaxFileBytes <= 0 {
		return errors.Newf("limits.max_file_bytes must be > 0, got %d", c.Limits.MaxFileBytes)
	}
	if c.Limits.MaxPixels <= 0 {
		return errors.Newf("limits.max_pixels must be > 0, got %d", c.Limits.MaxPixels)
	}

	// Workers: 0 = one per CPU, negative = invalid
	if c.Pipeline.Workers < 0 {
		return errors.Newf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxDepth < 0 {
		return errors.Newf("pipeline.max_depth must be >= 0, got %d", c.Pipeline.MaxDepth)
	}

	if c.Inference.Timeout <= 0 {
		return errors.Newf("inference.timeout must be > 0, got %s", c.Inference.Timeout)
	}
	if c.Inference.Concurrency <= 0 {
		return errors.Newf("inference.concurrency must be > 0, got %d", c.Inference.Concurrency)
	}

	switch c.Inference.Backend {
	case BackendOpaque:
	case BackendChroma:
		if c.Inference.MaskSize <= 0 {
			return errors.Newf("inference.mask_size must be > 0, got %d", c.Inference.MaskSize)
		}
	case BackendBiRefNet:
		u, err := url.Parse(c.BiRefNet.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.WithHint(
				errors.Newf("birefnet.base_url %q is not an absolute URL", c.BiRefNet.BaseURL),
				"set it to the ComfyUI server, e.g. http://127.0.0.1:8188/")
		}
		if c.BiRefNet.RequestsPerSecond <= 0 {
			return errors.Newf("birefnet.requests_per_second must be > 0, got %f", c.BiRefNet.RequestsPerSecond)
		}
		if c.BiRefNet.PollInterval <= 0 {
			return errors.Newf("birefnet.poll_interval must be > 0, got %s", c.BiRefNet.PollInterval)
		}
	default:
		return errors.WithHintf(
			errors.Newf("unknown inference.backend %q", c.Inference.Backend),
			"use one of %s, %s, %s", BackendChroma, BackendOpaque, BackendBiRefNet)
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return errors.Wrapf(err, "watch.schedule %q", c.Watch.Schedule)
		}
	}
	if c.Watch.Debounce < 0 {
		return errors.Newf("watch.debounce must be >= 0, got %s", c.Watch.Debounce)
	}
	return nil
}
