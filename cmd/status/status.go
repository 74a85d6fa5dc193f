package status

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/status"
)

// New creates a new `status` command.
func New() *cobra.Command {
	var vmArg string
	var asJSON, probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show VM and sync health.",
		Long: "Report each VM's state and the health of its sync\n" +
			"sessions. Status is read-only and safe to run at any time.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(vmArg, asJSON, probe); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&vmArg, "vm", "", "limit the report to one VM")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	cmd.Flags().BoolVar(&probe, "probe", false,
		"also check sync paths inside each running guest over ssh")
	return cmd
}

func run(vmArg string, asJSON, probe bool) error {
	env, err := util.LoadEnv()
	if err != nil {
		return err
	}

	// Status is read-only. In particular it must not reconcile: reconcile
	// acts on a single liveness observation, and status has to be safe to
	// run during a transient hypervisor hiccup.
	aggregator := status.NewAggregator(env.Backend, env.Engine)

	var reports []status.Report
	if vmArg != "" {
		vmName, err := util.ResolveVMName(vmArg)
		if err != nil {
			return err
		}
		report, err := aggregator.VM(vmName)
		if err != nil {
			return err
		}
		reports = []status.Report{report}
	} else {
		reports, err = aggregator.Environment()
		if err != nil {
			return err
		}
	}

	if probe {
		probeGuests(env, reports)
	}

	if asJSON {
		contents, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return errors.WithContext(err, "marshal reports")
		}
		fmt.Println(string(contents))
		return nil
	}

	status.Render(os.Stdout, reports)
	return nil
}

// probeGuests fills in guest-side mount state for each running VM. Probes
// are advisory and never fail the status query.
func probeGuests(env *util.Env, reports []status.Report) {
	prober := status.NewProber(env.Config.GuestUser, env.Config.GuestPassword)
	for i, report := range reports {
		if !report.Running {
			continue
		}

		ip, err := env.Backend.IPAddress(report.VM)
		if err != nil {
			log.WithError(err).WithField("vm", report.VM).
				Debug("Skipping guest probe; no IP")
			continue
		}
		reports[i].Mounts = prober.Probe(ip, env.GuestPaths())
	}
}
