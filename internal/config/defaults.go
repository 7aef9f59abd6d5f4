package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Executor: ExecutorConfig{
			WorkingDir:     "~/.termbridge/workspace",
			TimeoutSeconds: 30,
			MaxOutputBytes: 65536,
		},
		Analyzer: AnalyzerConfig{},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  "~/.termbridge/audit.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Health: HealthConfig{
			TimeoutSeconds: 2,
			Targets: []HealthTarget{
				{Name: "termbridge", URL: "http://127.0.0.1:3000/health"},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
