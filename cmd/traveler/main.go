// Command traveler is the TourVerse traveler client: OTP-based login and
// registration, profile management and password flows against the
// traveler REST API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/app"
	"github.com/tourverse/traveler/internal/config"
)

const usage = `Usage: traveler [-config path] <command>

Commands:
  login            sign in (credentials, then emailed OTP)
  register         create an account (details, then emailed OTP)
  logout           sign out and clear the saved session
  profile          show the current profile
  update-profile   change name / phone
  change-password  change the account password
  forgot-password  request a password reset OTP
  reset-password   complete a password reset with the emailed OTP
  delete-account   permanently delete the account
  open <route>     show whether a route is reachable right now
`

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "path to config.yml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	c, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}

	ctx := context.Background()
	cli := &cli{c: c, in: bufio.NewReader(os.Stdin)}

	// Restore any saved session before running the command so guarded
	// commands see the authenticated state.
	if outcome := c.Auth.Rehydrate(ctx); !outcome.Success && outcome.Message != "" {
		fmt.Println(outcome.Message)
	}

	switch flag.Arg(0) {
	case "login":
		cli.login(ctx)
	case "register":
		cli.register(ctx)
	case "logout":
		cli.report(c.Auth.Logout(ctx))
	case "profile":
		cli.profile(ctx)
	case "update-profile":
		cli.updateProfile(ctx)
	case "change-password":
		cli.changePassword(ctx)
	case "forgot-password":
		cli.report(c.Auth.ForgotPassword(ctx, cli.prompt("Email: ")))
	case "reset-password":
		cli.resetPassword(ctx)
	case "delete-account":
		cli.deleteAccount(ctx)
	case "open":
		cli.open(flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

type cli struct {
	c  *app.Container
	in *bufio.Reader
}

func (cl *cli) prompt(label string) string {
	fmt.Print(label)
	line, _ := cl.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// report prints an outcome, including any per-field messages.
func (cl *cli) report(outcome *domain.Outcome) {
	fmt.Println(outcome.Message)
	for field, msg := range outcome.Fields {
		fmt.Printf("  %s: %s\n", field, msg)
	}
	if !outcome.Success {
		os.Exit(1)
	}
}

func (cl *cli) login(ctx context.Context) {
	creds := domain.Credentials{
		Email:    cl.prompt("Email: "),
		Password: cl.prompt("Password: "),
	}
	outcome := cl.c.Auth.LoginInit(ctx, creds)
	if !outcome.Success {
		cl.report(outcome)
		return
	}
	fmt.Println(outcome.Message)

	code := cl.prompt("OTP: ")
	outcome = cl.c.Auth.LoginVerify(ctx, creds.Email, code)
	cl.report(outcome)
	if outcome.User != nil {
		fmt.Printf("Welcome back, %s!\n", outcome.User.Name)
	}
}

func (cl *cli) register(ctx context.Context) {
	reg := domain.Registration{
		Name:     cl.prompt("Name: "),
		Email:    cl.prompt("Email: "),
		Phone:    cl.prompt("Phone: "),
		Password: cl.prompt("Password: "),
	}
	outcome := cl.c.Auth.RegisterInit(ctx, reg)
	if !outcome.Success {
		cl.report(outcome)
		return
	}
	fmt.Println(outcome.Message)

	code := cl.prompt("OTP: ")
	cl.report(cl.c.Auth.RegisterVerify(ctx, reg.Email, code))
}

func (cl *cli) profile(ctx context.Context) {
	outcome := cl.c.Auth.FetchProfile(ctx)
	if !outcome.Success {
		cl.report(outcome)
		return
	}
	u := outcome.User
	fmt.Printf("Name:  %s\nEmail: %s\nPhone: %s\n", u.Name, u.Email, u.Phone)
	if u.ProfilePictureURL != "" {
		fmt.Printf("Photo: %s\n", u.ProfilePictureURL)
	}
	if outcome.Message != "" {
		fmt.Println(outcome.Message)
	}
}

func (cl *cli) updateProfile(ctx context.Context) {
	update := domain.ProfileUpdate{
		Name:  cl.prompt("Name: "),
		Phone: cl.prompt("Phone: "),
	}
	cl.report(cl.c.Auth.UpdateProfile(ctx, update))
}

func (cl *cli) changePassword(ctx context.Context) {
	oldPassword := cl.prompt("Current password: ")
	newPassword := cl.prompt("New password: ")
	cl.report(cl.c.Auth.ChangePassword(ctx, oldPassword, newPassword))
}

func (cl *cli) resetPassword(ctx context.Context) {
	email := cl.prompt("Email: ")
	code := cl.prompt("OTP: ")
	newPassword := cl.prompt("New password: ")
	cl.report(cl.c.Auth.ResetPassword(ctx, email, newPassword, code))
}

func (cl *cli) deleteAccount(ctx context.Context) {
	if cl.prompt("Type DELETE to confirm: ") != "DELETE" {
		fmt.Println("Aborted.")
		return
	}
	cl.report(cl.c.Auth.DeleteProfile(ctx))
}

func (cl *cli) open(route string) {
	if route == "" {
		fmt.Println("Usage: traveler open <route>")
		os.Exit(2)
	}
	decision, err := cl.c.Guard.Evaluate(cl.c.Sessions.Snapshot(), route)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	switch {
	case decision.Wait:
		fmt.Println("Session still loading; try again.")
	case decision.Allow:
		fmt.Printf("%s is reachable.\n", route)
	default:
		fmt.Printf("Redirect to %s", decision.Redirect)
		if decision.From != "" {
			fmt.Printf(" (returning to %s after login)", decision.From)
		}
		fmt.Println()
	}
}
