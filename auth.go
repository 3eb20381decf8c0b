package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/drive2s3/internal/config"
	"github.com/tonimelisma/drive2s3/internal/gdrive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Drive in the browser",
		Long: `Open the Google consent page and cache the resulting token. The OAuth client
comes from source.client_secret_file and the requested scopes from source.scopes.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the cached Google Drive token",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	oauthCfg, err := gdrive.OAuthConfig(cc.Cfg.Source.ClientSecretFile, cc.Cfg.Source.Scopes)
	if err != nil {
		return err
	}

	if _, err := gdrive.Login(cmd.Context(), oauthCfg, config.CredentialPath(), openBrowser, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := gdrive.Logout(config.CredentialPath(), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// driveTokenSource loads the cached Drive token. When interactive is true
// and no usable token exists, it runs the browser login instead of failing.
func driveTokenSource(ctx context.Context, cc *CLIContext, interactive bool) (gdrive.TokenSource, error) {
	oauthCfg, err := gdrive.OAuthConfig(cc.Cfg.Source.ClientSecretFile, cc.Cfg.Source.Scopes)
	if err != nil {
		return nil, err
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClient(cc.Cfg))
	tokenPath := config.CredentialPath()

	ts, err := gdrive.LoadOrRefreshCredential(oauthCtx, oauthCfg, tokenPath, cc.Logger)
	if err == nil {
		return ts, nil
	}

	if !errors.Is(err, gdrive.ErrNotLoggedIn) {
		return nil, err
	}

	if !interactive {
		return nil, fmt.Errorf("not logged in, run 'drive2s3 login' first: %w", err)
	}

	cc.Logger.Info("no cached Google Drive token, starting browser login")
	promptf(os.Stderr, "No cached Google Drive token. Opening the browser to log in.\n")

	return gdrive.Login(oauthCtx, oauthCfg, tokenPath, openBrowser, cc.Logger)
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	go func() { _ = cmd.Wait() }()

	return nil
}
