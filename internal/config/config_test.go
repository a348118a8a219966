package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory when nothing is configured", cfg.StoreBackend)
	}
}

func TestLoadMongoInferred(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendMongo {
		t.Errorf("StoreBackend = %q, want mongo when MONGODB_URI is set", cfg.StoreBackend)
	}
	if cfg.MongoDatabase != "authsite" {
		t.Errorf("MongoDatabase = %q, want authsite", cfg.MongoDatabase)
	}
}

func TestLoadBackendValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"mongo without uri", map[string]string{"STORE_BACKEND": "mongo"}, true},
		{"datastore without project", map[string]string{"STORE_BACKEND": "datastore"}, true},
		{"unknown backend", map[string]string{"STORE_BACKEND": "cassandra"}, true},
		{"memory", map[string]string{"STORE_BACKEND": "memory"}, false},
		{"datastore", map[string]string{
			"STORE_BACKEND":        "datastore",
			"DATASTORE_PROJECT_ID": "proj-1",
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOAuthProviders(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "g-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "g-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Google.ClientID != "g-id" || cfg.Google.ClientSecret != "g-secret" {
		t.Errorf("Google = %+v", cfg.Google)
	}
	if cfg.Github.ClientID != "" {
		t.Errorf("Github.ClientID = %q, want empty", cfg.Github.ClientID)
	}
}

func TestCallbackURL(t *testing.T) {
	cfg := &Config{BaseURL: "https://auth.example.com"}
	if got := cfg.CallbackURL("github"); got != "https://auth.example.com/auth/github/profile" {
		t.Errorf("CallbackURL = %q", got)
	}
}
