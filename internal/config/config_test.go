package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPort != "5432" {
		t.Fatalf("DBPort=%q want 5432", cfg.DBPort)
	}
	if cfg.MaxTreeDepth != 64 {
		t.Fatalf("MaxTreeDepth=%d want 64", cfg.MaxTreeDepth)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port=%q want 8080", cfg.Port)
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("MAX_PARTICIPANTS", "three")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"list with blanks", " https://a.example , ,https://b.example", []string{"https://a.example", "https://b.example"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := (&Config{CORSOrigins: tt.in}).AllowedOrigins()
			if len(got) != len(tt.want) {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got=%v want=%v", got, tt.want)
				}
			}
		})
	}
}
