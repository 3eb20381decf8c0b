package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "DRIVE2S3_CONFIG"
	EnvRootFolder   = "DRIVE2S3_ROOT_FOLDER"
	EnvAccessKey    = "DRIVE2S3_ACCESS_KEY"
	EnvAccessSecret = "DRIVE2S3_ACCESS_SECRET"
	EnvAWSAccessKey = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey = "AWS_SECRET_ACCESS_KEY"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // DRIVE2S3_CONFIG
	RootFolderID string // DRIVE2S3_ROOT_FOLDER
	AccessKey    string // DRIVE2S3_ACCESS_KEY, then AWS_ACCESS_KEY_ID
	AccessSecret string // DRIVE2S3_ACCESS_SECRET, then AWS_SECRET_ACCESS_KEY
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// The access key pair is taken as a unit: the AWS names are consulted only
// when neither DRIVE2S3 variable is set, so a key never pairs with a secret
// from a different source.
func ReadEnvOverrides() EnvOverrides {
	env := EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		RootFolderID: os.Getenv(EnvRootFolder),
		AccessKey:    os.Getenv(EnvAccessKey),
		AccessSecret: os.Getenv(EnvAccessSecret),
	}

	if env.AccessKey == "" && env.AccessSecret == "" {
		env.AccessKey = os.Getenv(EnvAWSAccessKey)
		env.AccessSecret = os.Getenv(EnvAWSSecretKey)
	}

	return env
}
