package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigAPI serves the runtime subset of the config file over HTTP. The
// file stays the only source of truth: GET reads it, POST rewrites it and
// the daemon's file watcher picks the change up.
type ConfigAPI struct {
	cfile string
	mu    sync.Mutex // serialises read-modify-write of cfile
}

func NewConfigAPI(cfile string) *ConfigAPI {
	return &ConfigAPI{cfile: cfile}
}

// Register adds the /api/config routes to mux. Other methods get a 405
// from the mux.
func (api *ConfigAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", api.get)
	mux.HandleFunc("POST /api/config", api.set)
}

// Handler returns a mux that only serves /api/config.
func (api *ConfigAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	api.Register(mux)
	return mux
}

func (api *ConfigAPI) get(w http.ResponseWriter, _ *http.Request) {
	slog.Debug("GET /api/config")
	conf, err := ReadConfig(api.cfile)
	if err != nil {
		slog.Error("Failed to read config file for API", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, conf.Runtime())
}

func (api *ConfigAPI) set(w http.ResponseWriter, r *http.Request) {
	slog.Debug("POST /api/config")
	defer r.Body.Close()

	var rc RuntimeConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := rc.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	conf, err := ReadConfig(api.cfile)
	if err != nil {
		slog.Error("Failed to read existing config for update", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	conf.ApplyRuntime(rc)
	if err := conf.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	if err := api.save(conf); err != nil {
		slog.Error("Failed to save config file", "file", api.cfile, "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("Config file updated through the admin API", "file", api.cfile)
	writeJSON(w, conf.Runtime())
}

// save replaces cfile through a rename in the same directory, so the
// watcher never sees a half written file.
func (api *ConfigAPI) save(conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("can't marshal config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(api.cfile), ".blinkd-config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), api.cfile)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
