package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/xokvictor/miles-mcp/pkg/auth"
	"github.com/xokvictor/miles-mcp/pkg/config"
	"github.com/xokvictor/miles-mcp/pkg/logging"
)

func main() {
	cfg, err := config.Read(config.DefaultEnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" {
		fmt.Println("❌ Error: STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
		fmt.Println("\nHow to obtain:")
		fmt.Println("1. Open https://www.strava.com/settings/api")
		fmt.Println("2. Create an application")
		fmt.Println("3. Set Authorization Callback Domain: localhost")
		fmt.Println("4. Copy Client ID and Client Secret into .env")
		fmt.Println("\nRun:")
		fmt.Println("STRAVA_CLIENT_ID=your_id STRAVA_CLIENT_SECRET=your_secret go run ./cmd/auth")
		os.Exit(1)
	}

	store, err := auth.NewFileStore(cfg.StravaTokenFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("🚀 Waiting for Strava authorization on http://localhost:8080/callback")
	fmt.Println("   A browser window should open; if not, the URL is printed in the log below.")

	result, err := auth.StartAuthFlow(ctx, auth.OAuthConfig{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		TokenURL:     cfg.StravaTokenURL,
		Store:        store,
		Logger:       logging.New(os.Stderr, cfg.LogLevel, "miles-auth"),
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Authorization failed: %v\n", err)
		os.Exit(1)
	}
	if !result.Success {
		fmt.Printf("\n⚠️  %s\n", result.Message)
		fmt.Printf("   Authorization URL: %s\n", result.AuthURL)
		os.Exit(1)
	}

	fmt.Println("\n✅ Authorization successful!")
	fmt.Println("\n💾 Token saved to", store.Path())
	fmt.Println("\n🔄 Refresh Token (for STRAVA_REFRESH_TOKEN):")
	fmt.Println(result.RefreshToken)
	if result.AthleteID != "" {
		fmt.Println("\n🚴 Athlete ID (for STRAVA_ATHLETE_ID):")
		fmt.Println(result.AthleteID)
	}
}
