// Package testutil holds environment helpers for the end-to-end tests,
// which run the built binary against a real Drive folder and bucket. It
// depends only on the standard library so e2e/ can import it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the e2e suite.
const (
	EnvTestFolder     = "DRIVE2S3_TEST_FOLDER"
	EnvAllowedFolders = "DRIVE2S3_ALLOWED_TEST_FOLDERS"
	EnvTestBucket     = "DRIVE2S3_TEST_BUCKET"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at path. A missing file
// is not an error. Variables already set in the environment win.
func LoadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireAllowedFolder exits the process unless the test folder is listed
// in the allowlist, so a mistyped id can never migrate a real folder.
func RequireAllowedFolder() string {
	folder := os.Getenv(EnvTestFolder)
	if folder == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvTestFolder)
		os.Exit(1)
	}

	allowlist := os.Getenv(EnvAllowedFolders)
	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == folder {
			return folder
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n", EnvTestFolder, folder, EnvAllowedFolders, allowlist)
	os.Exit(1)

	return ""
}

// FindModuleRoot walks up from the working directory to the directory
// holding go.mod, or returns fallback.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// FindTestCredentialDir returns moduleRoot/.testdata, which must hold
// config.toml, client_secret.json and google-drive.json (a cached token
// produced by `drive2s3 login`).
func FindTestCredentialDir(moduleRoot string) string {
	dir := filepath.Join(moduleRoot, ".testdata")

	for _, name := range []string{"config.toml", "client_secret.json", "google-drive.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %s missing from %s\n", name, dir)
			os.Exit(1)
		}
	}

	return dir
}

// CopyFile copies src to dst with perm, exiting on failure.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot read %s: %v\n", src, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: creating %s: %v\n", filepath.Dir(dst), err)
		os.Exit(1)
	}

	if err := os.WriteFile(dst, data, perm); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", dst, err)
		os.Exit(1)
	}
}
