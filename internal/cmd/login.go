// Package cmd implements the command line actions: interactive login,
// logout, account queries, and live event monitoring.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/auth"
	"github.com/restream-tools/restreamctl/internal/browser"
	"github.com/restream-tools/restreamctl/internal/config"
	"github.com/restream-tools/restreamctl/internal/restream"
)

// callbackWait bounds how long the login flow waits for the user to finish
// the browser round trip.
const callbackWait = 5 * time.Minute

// LoginOptions control the interactive login flow.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
	// CallbackPort overrides the loopback port for the redirect listener.
	CallbackPort int
}

// DoLogin runs the authorization code flow: it starts the loopback
// callback listener, sends the user to the consent page, exchanges the
// returned code, and persists the resulting session in the token store.
func DoLogin(ctx context.Context, cfg *config.Config, client *restream.Client, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}

	callbackPort := cfg.CallbackPort
	if options.CallbackPort > 0 {
		callbackPort = options.CallbackPort
	}

	pkceCodes, err := auth.GeneratePKCECodes()
	if err != nil {
		return fmt.Errorf("pkce generation failed: %w", err)
	}
	state, err := auth.GenerateState()
	if err != nil {
		return fmt.Errorf("state generation failed: %w", err)
	}

	callbackServer := auth.NewCallbackServer(state)
	if err = callbackServer.Start(callbackPort); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if stopErr := callbackServer.Stop(stopCtx); stopErr != nil {
			log.Warnf("callback listener stop error: %v", stopErr)
		}
	}()

	redirectURI := callbackServer.RedirectURI()
	authURL, err := client.Negotiator().BuildAuthorizationURL(redirectURI, cfg.Scopes, state, pkceCodes)
	if err != nil {
		return err
	}

	if !options.NoBrowser && browser.IsAvailable() {
		fmt.Println("Opening browser for Restream authentication")
		if errOpen := browser.OpenURL(authURL); errOpen != nil {
			log.Warnf("Failed to open browser automatically: %v", errOpen)
			printAuthURL(authURL)
		}
	} else {
		printAuthURL(authURL)
	}

	fmt.Println("Waiting for Restream authentication callback...")
	result, err := callbackServer.WaitForCallback(callbackWait)
	if err != nil {
		return err
	}

	record, err := client.CompleteLogin(ctx, result.Code, redirectURI, pkceCodes.CodeVerifier)
	if err != nil {
		return err
	}

	fmt.Println("Restream authentication successful")
	log.Debugf("access token valid until %s", record.ExpiresAt.Format(time.RFC3339))
	return nil
}

func printAuthURL(authURL string) {
	fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	if err := clipboard.WriteAll(authURL); err == nil {
		fmt.Println("(the URL has been copied to your clipboard)")
	}
}

// DoLogout drops the persisted session. Logging out twice is not an error.
func DoLogout(ctx context.Context, client *restream.Client) error {
	if err := client.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Session cleared")
	return nil
}
