package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host": "0.0.0.0",
		"server.port": 10400,

		"intake.max_file_size": 100 * 1024 * 1024,
		"intake.allowed_extensions": []string{
			"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
			"rtf", "odt", "jpg", "jpeg", "png",
		},

		"sandbox.backend":      "docker",
		"sandbox.image":        "cleansheet-worker:latest",
		"sandbox.memory":       "2g",
		"sandbox.cpus":         "1.0",
		"sandbox.scratch_size": "1g",
		"sandbox.slots":        4,

		"pipeline.stage_timeout":   "120s",
		"pipeline.raster_dpi":      200,
		"pipeline.retries":         2,
		"pipeline.download_expiry": "15m",

		"scanner.api_key":      "",
		"scanner.base_url":     "https://www.virustotal.com/api/v3",
		"scanner.timeout":      "30s",
		"scanner.poll_timeout": "60s",

		"storage.work_dir":         "/var/lib/cleansheet/jobs",
		"storage.orphan_retention": "1h",
		"storage.reap_interval":    "10m",

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
