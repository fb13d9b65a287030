package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// mergeSecrets reads the secrets file, when one is found, over the values
// already in v and returns its contents for redaction.
//
// The secrets file is discovered as follows:
//   - <ENV_PREFIX>_SECRETS_FILE, when set, must point to a readable file
//   - secrets.<ext> next to the config file
//   - secrets.{yaml,yml,json,toml} in the current directory
func (l *ViperLoader) mergeSecrets(v *viper.Viper) (*Config, error) {
	secretsFile, err := l.discoverSecretsFile()
	if err != nil || secretsFile == "" {
		return nil, err
	}

	sv := viper.New()
	sv.SetConfigFile(secretsFile)
	if err := sv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read secrets file %s: %w", secretsFile, err)
	}
	var secrets Config
	if err := sv.Unmarshal(&secrets); err != nil {
		return nil, fmt.Errorf("decode secrets file %s: %w", secretsFile, err)
	}
	if err := v.MergeConfigMap(sv.AllSettings()); err != nil {
		return nil, fmt.Errorf("merge secrets: %w", err)
	}
	return &secrets, nil
}

func (l *ViperLoader) discoverSecretsFile() (string, error) {
	env := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(env); ok {
		return explicitSecretsFile(env, strings.TrimSpace(raw))
	}
	for _, candidate := range l.secretsCandidates() {
		if isFile(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// secretsCandidates lists the implicit locations in lookup order.
func (l *ViperLoader) secretsCandidates() []string {
	if l.configFile != "" {
		return []string{filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile))}
	}
	return []string{"secrets.yaml", "secrets.yml", "secrets.json", "secrets.toml"}
}

func explicitSecretsFile(env, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s is set but empty", env)
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "", fmt.Errorf("%s points to an inaccessible file %s: %w", env, path, err)
	case info.IsDir():
		return "", fmt.Errorf("%s must point to a file, got directory %s", env, path)
	}
	return path, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
