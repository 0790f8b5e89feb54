package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/config"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/output"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for the shipyard server",
	Long: `Stores a platform-issued access token locally. The token is sent as a
bearer token with every request.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity carried by the stored token",
	Long: `Decodes the stored token and displays its identity claims. The
signature is checked by the server, not here.`,
	RunE: runWhoami,
}

// tokenIdentity is the part of the access token shipyardctl displays
type tokenIdentity struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Issuer    string `json:"issuer,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Server    string `json:"server"`
}

func init() {
	loginCmd.Flags().StringP("token", "t", "", "Access token (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")

	if token == "" {
		fmt.Print("Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		fmt.Println()
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return fmt.Errorf("no token given")
	}

	ident, err := decodeToken(token)
	if err != nil {
		return err
	}

	serverURL := viper.GetString("server.url")
	tokenData := &config.TokenData{
		AccessToken: token,
		ServerURL:   serverURL,
		Username:    ident.UserName,
		ExpiresAt:   ident.ExpiresAt,
	}
	if err := config.SaveToken(tokenData); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(map[string]interface{}{
			"message":  "Token stored",
			"username": ident.UserName,
			"server":   serverURL,
		})
	}

	output.PrintMessage(fmt.Sprintf("Logged in as %s on %s", displayName(ident), serverURL))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := config.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	if getOutputFormat() == "json" {
		return output.PrintJSON(map[string]string{"message": "Logged out"})
	}

	output.PrintMessage("Logged out successfully.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	tokenData, err := config.LoadToken()
	if err != nil || tokenData.AccessToken == "" {
		return fmt.Errorf("not logged in (run 'shipyardctl login')")
	}

	ident, err := decodeToken(tokenData.AccessToken)
	if err != nil {
		return err
	}
	ident.Server = tokenData.ServerURL

	return output.PrintFormatted(getOutputFormat(), ident, func() error {
		output.PrintTable(
			[]string{"FIELD", "VALUE"},
			[][]string{
				{"Username", ident.UserName},
				{"Email", ident.Email},
				{"User ID", ident.UserID},
				{"Issuer", ident.Issuer},
				{"Expires", ident.ExpiresAt},
				{"Server", ident.Server},
			},
		)
		return nil
	})
}

// decodeToken reads the identity claims of a JWT without verifying it
func decodeToken(token string) (*tokenIdentity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}

	ident := &tokenIdentity{}
	ident.UserID, _ = claims["user_id"].(string)
	ident.UserName, _ = claims["user_name"].(string)
	ident.Email, _ = claims["email"].(string)
	ident.Issuer, _ = claims.GetIssuer()

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ident.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return ident, nil
}

func displayName(ident *tokenIdentity) string {
	switch {
	case ident.UserName != "":
		return ident.UserName
	case ident.UserID != "":
		return ident.UserID
	default:
		return "anonymous"
	}
}
