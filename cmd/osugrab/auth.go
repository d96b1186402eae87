package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"osugrab/pkg/auth"
	"osugrab/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage osu! API credentials",
	Long: `Manage stored osu! API credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (backward compatibility)

Never share your API keys or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store osu! API credentials securely",
	Long: `Store osu! API credentials securely in the system keychain or encrypted file.

You will be prompted for:
  - Profile name (if not provided; "default" is used when left empty)
  - Legacy v1 API key
  - OAuth client ID
  - OAuth client secret

To get these values:
1. Request a legacy API key at https://osu.ppy.sh/home/account/edit#legacy-api
2. Create an OAuth application on the same page
3. Copy the client ID and client secret`,
	Example: `  # Interactive login
  osugrab auth login

  # Login with a named profile
  osugrab auth login tournament`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored credentials",
	Long: `Remove stored osu! API credentials.

If no profile is provided, you will be shown a list of stored profiles
to choose from.`,
	Example: `  # Interactive logout
  osugrab auth logout

  # Logout specific profile
  osugrab auth logout tournament`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored profiles",
	Long:  `List all stored credential profiles with secrets masked.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var profile string
	if len(args) > 0 {
		profile = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if profile == "" {
		fmt.Print("Profile name (press Enter for \"default\"): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read profile name", err.Error())
			os.Exit(1)
		}
		profile = strings.TrimSpace(input)
		if profile == "" {
			profile = "default"
		}
	}

	// Check if the profile already exists
	if existing, _ := manager.Retrieve(profile); existing != nil {
		fmt.Printf("Profile %q already exists. Update credentials? (y/N): ", profile)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\nEnter your osu! API values (they will be hidden as you type):")
	fmt.Println()

	fmt.Print("v1 API key: ")
	apiV1Key, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read API key", err.Error())
		os.Exit(1)
	}

	fmt.Print("\nOAuth client ID: ")
	clientID, err := reader.ReadString('\n')
	if err != nil {
		ui.PrintError("Failed to read client ID", err.Error())
		os.Exit(1)
	}
	clientID = strings.TrimSpace(clientID)

	fmt.Print("OAuth client secret: ")
	clientSecret, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read client secret", err.Error())
		os.Exit(1)
	}

	creds := &auth.Credentials{
		Profile:      profile,
		APIV1Key:     apiV1Key,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		LastModified: time.Now(),
	}

	fmt.Println("\nStoring credentials securely...")
	if err := manager.Save(creds); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Profile saved: " + profile)
	fmt.Println("\nStart fetching beatmapsets with:")
	fmt.Println("  osugrab run")
	if profile != "default" {
		fmt.Printf("  osugrab run --profile %s\n", profile)
	}
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if len(args) == 0 {
		profiles, err := manager.List()
		if err != nil || len(profiles) == 0 {
			ui.PrintError("No stored profiles found", "")
			return
		}

		if len(profiles) == 1 {
			profile := profiles[0]
			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("Remove profile %q? (y/N): ", profile.Profile)
			input, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
				return
			}

			if err := manager.Delete(profile.Profile); err != nil {
				ui.PrintError("Failed to remove profile", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Profile removed: " + profile.Profile)
			return
		}

		fmt.Println("Select profile to remove:")
		for i, profile := range profiles {
			fmt.Printf("  %d. %s\n", i+1, profile.Profile)
		}
		fmt.Printf("  0. Cancel\n\n")

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Choice: ")
		input, _ := reader.ReadString('\n')

		var choice int
		fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

		if choice < 1 || choice > len(profiles) {
			return
		}

		profile := profiles[choice-1]
		if err := manager.Delete(profile.Profile); err != nil {
			ui.PrintError("Failed to remove profile", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("Profile removed: " + profile.Profile)
		return
	}

	profile := args[0]
	if err := manager.Delete(profile); err != nil {
		ui.PrintError("Failed to remove profile", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Profile removed: " + profile)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	profiles, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list profiles", err.Error())
		os.Exit(1)
	}

	if len(profiles) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'osugrab auth login' to add one")
		return
	}

	ui.PrintHighlight("Stored Profiles")
	fmt.Println()

	for i, profile := range profiles {
		sanitized := auth.Sanitize(profile)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Profile)
		fmt.Printf("   v1 API key: %s\n", sanitized.APIV1Key)
		fmt.Printf("   Client ID: %s\n", sanitized.ClientID)
		fmt.Printf("   Client secret: %s\n", sanitized.ClientSecret)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a secret from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
