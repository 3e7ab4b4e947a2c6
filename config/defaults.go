package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input.dir", "input_frames")
	v.SetDefault("output.dir", "frames")

	// Decode budget
	v.SetDefault("limits.max_file_bytes", 20<<20) // 20 MiB
	v.SetDefault("limits.max_pixels", 89_478_485)  // 0xFFFF x 0xFFFF / 48

	v.SetDefault("pipeline.workers", 0) // one per CPU
	v.SetDefault("pipeline.max_depth", 0)

	v.SetDefault("inference.backend", BackendChroma)
	v.SetDefault("inference.timeout", 2*time.Minute)
	v.SetDefault("inference.concurrency", 1) // model runtimes are not reentrant
	v.SetDefault("inference.mask_size", 320)

	v.SetDefault("birefnet.base_url", "http://127.0.0.1:8188/")
	v.SetDefault("birefnet.requests_per_second", 5.0)
	v.SetDefault("birefnet.poll_interval", time.Second)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("watch.schedule", "")
	v.SetDefault("watch.debounce", 2*time.Second)
}
