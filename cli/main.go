package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IcedVodka/robot2"
	"github.com/IcedVodka/robot2/internal/creds"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

const validSteps = "recognize, pick, place"

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file")
	configPath := flag.String("config", "", "path to YAML config overlay (optional)")
	step := flag.String("step", "", "step to run: "+validSteps)
	items := flag.String("items", "", "comma-separated medicine names for -step pick (skips recognition)")
	plansDir := flag.String("plans-dir", "", "directory for cached place trajectories (optional)")
	flag.Parse()

	logger := logging.NewLogger("robot2-cli")

	if *credsPath == "" {
		logger.Fatal("-creds flag is required")
	}
	if *step == "" {
		logger.Fatal("-step flag is required; valid steps: " + validSteps)
	}
	switch *step {
	case "recognize", "pick", "place":
	default:
		logger.Fatalf("unknown step %q; valid steps: %s", *step, validSteps)
	}

	robotCreds, err := creds.Load(*credsPath)
	if err != nil {
		logger.Fatal(err)
	}

	cfg, err := robot2.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	cfg.Vision.APIKey = robotCreds.LLMAPIKey
	if robotCreds.LLMBaseURL != "" {
		cfg.Vision.BaseURL = robotCreds.LLMBaseURL
	}
	if *plansDir != "" {
		cfg.PlansDir = *plansDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := client.New(
		ctx,
		robotCreds.Address,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			robotCreds.EntityID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: robotCreds.APIKey,
			})),
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")

	r, err := robot2.NewRobot(ctx, machine, cfg, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := r.StartStreams(ctx); err != nil {
		logger.Fatal(err)
	}
	defer r.StopStreams()

	logger.Infof("=== Running step: %s ===", *step)

	switch *step {
	case "recognize":
		names, err := r.RecognizePrescription(ctx)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("Prescription lists %d medicines:", len(names))
		for i, n := range names {
			logger.Infof("  %d. %s", i+1, n)
		}
	case "pick":
		summary := robot2.Run(ctx, r, splitItems(*items))
		logger.Infof("Picked: %v", summary.Picked)
		logger.Infof("Skipped: %v", summary.Skipped)
		if summary.Final != robot2.StageFinished {
			logger.Fatalf("job halted in %s", summary.Final)
		}
	case "place":
		if err := r.PlaceBasket(ctx); err != nil {
			logger.Fatal(err)
		}
	}
	logger.Infof("Step %s completed successfully", *step)
}

// splitItems parses a comma-separated medicine list, dropping empty entries.
func splitItems(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
