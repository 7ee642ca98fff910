package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/pkg/browser"
	"github.com/sarchlab/cyclesim/datarecording"
	"github.com/sarchlab/cyclesim/examples/contention"
	"github.com/sarchlab/cyclesim/monitoring"
	"github.com/sarchlab/cyclesim/sim/timing"
	"github.com/sarchlab/cyclesim/tracing"
	"github.com/spf13/cobra"
)

// monitorChunk is the number of cycles stepped between progress updates when
// the monitor is on.
const monitorChunk = 100

var flagsOfRun runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the contention model.",
	Long: `Run the contention model: producers compete for mailboxes and ` +
		`consumers compete for a shared adder until every item is consumed. ` +
		`Settings are read from the .env file, from CYCLESIM_ environment ` +
		`variables, and from flags, in increasing order of precedence.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := flagsOfRun.resolve(cmd.Flags())
		if err != nil {
			return err
		}

		return runModel(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), c)
	},
}

func init() {
	flagsOfRun.register(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

type session struct {
	config Config
	out    io.Writer
	errOut io.Writer

	kernel   *timing.Kernel
	model    *contention.Model
	counter  *tracing.StallCountTracer
	recorder datarecording.DataRecorder
	db       *tracing.DBTracer
	monitor  *monitoring.Monitor
}

func runModel(ctx context.Context, out, errOut io.Writer, c Config) error {
	s := &session{config: c, out: out, errOut: errOut}

	s.build()

	if c.RecordPath != "" {
		s.record()
		defer s.closeRecorder()
	}

	var state timing.RunState

	if c.Monitor {
		var err error

		state, err = s.runWithMonitor(ctx)
		if err != nil {
			return err
		}
	} else {
		state = s.kernel.Step(c.MaxCycles)
	}

	s.report(state)

	if c.KeepServing {
		s.waitForInterrupt(ctx)
	}

	if state == timing.Deadlock {
		return fmt.Errorf("deadlock at cycle %d", s.kernel.CycleNumber())
	}

	return nil
}

func (s *session) build() {
	c := s.config

	s.kernel = timing.NewKernel()
	s.model = contention.MakeBuilder().
		WithProducers(c.Producers).
		WithItems(c.Items).
		WithMailboxes(c.Mailboxes).
		WithMailboxCapacity(c.MailboxCapacity).
		WithPolicy(c.Policy).
		WithLogger(log.New(s.out, "", 0)).
		Build(s.kernel, "Demo")

	s.counter = tracing.NewStallCountTracer(nil)
	tracing.CollectTrace(s.kernel, s.counter)

	if c.TraceDeadlock {
		tracing.CollectTrace(s.kernel,
			tracing.NewDeadlockTracer(log.New(s.errOut, "", 0), nil))
	}
}

func (s *session) record() {
	s.recorder = datarecording.New(s.config.RecordPath)
	s.db = tracing.NewDBTracer(s.recorder, nil, s.config.RecordCycles)
	tracing.CollectTrace(s.kernel, s.db)
}

func (s *session) closeRecorder() {
	s.db.Terminate()

	err := s.recorder.Close()
	if err != nil {
		fmt.Fprintf(s.errOut, "closing the recording: %v\n", err)
	}
}

func (s *session) runWithMonitor(ctx context.Context) (timing.RunState, error) {
	s.monitor = monitoring.NewMonitor()
	if s.config.MonitorPort != 0 {
		s.monitor.WithPortNumber(s.config.MonitorPort)
	}

	s.monitor.RegisterKernel(s.kernel)

	port, err := s.monitor.StartServer()
	if err != nil {
		return timing.Idle, err
	}

	if s.config.OpenMonitor {
		err = browser.OpenURL(fmt.Sprintf("http://localhost:%d", port))
		if err != nil {
			fmt.Fprintf(s.errOut, "opening the monitor: %v\n", err)
		}
	}

	bar := s.monitor.CreateProgressBar("Consumed items",
		uint64(s.config.Producers*s.config.Items))
	defer s.monitor.CompleteProgressBar(bar)

	left := s.config.MaxCycles

	for {
		if ctx.Err() != nil {
			s.kernel.Abort()
		}

		n := uint64(monitorChunk)
		if left < n {
			n = left
		}

		state := s.monitor.Step(n)
		bar.SetFinished(uint64(s.consumed()))

		if left != timing.InfiniteCycles {
			left -= n
		}

		if state != timing.Running || left == 0 {
			return state, nil
		}
	}
}

func (s *session) consumed() int {
	n := 0
	for _, c := range s.model.Consumers {
		n += len(c.Consumed)
	}

	return n
}

func (s *session) waitForInterrupt(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(s.errOut, "Run ended. Press Ctrl+C to stop the monitor.")
	<-ctx.Done()
}

func (s *session) report(state timing.RunState) {
	k := s.kernel
	m := s.model

	fmt.Fprintf(s.out, "State: %s\n", state)
	fmt.Fprintf(s.out, "Cycles: %d (%d executed)\n",
		k.CycleNumber(), k.ExecutedCycles())
	fmt.Fprintf(s.out, "Result: %d of %d\n", m.Result.Read(), m.Expected())

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tCOMMITS\tSTALLS")

	for _, p := range k.Processes() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", p.Name(), p.Commits(), p.Stalls())
	}

	w.Flush()

	objects := s.counter.RefusingObjects()
	if len(objects) == 0 {
		return
	}

	w = tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECT\tREFUSALS")

	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%d\n", o, s.counter.Refusals(o))
	}

	w.Flush()
}
