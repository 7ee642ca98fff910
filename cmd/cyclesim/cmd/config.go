package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sarchlab/cyclesim/sim/arbitration"
	"github.com/sarchlab/cyclesim/sim/timing"
	"github.com/spf13/pflag"
)

// Config is the configuration of a run. Values come, in increasing order of
// precedence, from the defaults, the .env file, the environment and the
// command-line flags.
type Config struct {
	Producers       int
	Items           int
	Mailboxes       int
	MailboxCapacity int
	Policy          arbitration.Policy
	MaxCycles       uint64

	TraceDeadlock bool
	RecordPath    string
	RecordCycles  bool

	Monitor     bool
	MonitorPort int
	OpenMonitor bool
	KeepServing bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Producers:       2,
		Items:           4,
		Mailboxes:       1,
		MailboxCapacity: 2,
		Policy:          arbitration.PolicyPriority,
		MaxCycles:       timing.InfiniteCycles,
	}
}

type envSetting struct {
	name  string
	apply func(c *Config, v string) error
}

var envSettings = []envSetting{
	{"CYCLESIM_PRODUCERS", intSetter(func(c *Config) *int { return &c.Producers })},
	{"CYCLESIM_ITEMS", intSetter(func(c *Config) *int { return &c.Items })},
	{"CYCLESIM_MAILBOXES", intSetter(func(c *Config) *int { return &c.Mailboxes })},
	{"CYCLESIM_MAILBOX_CAPACITY", intSetter(func(c *Config) *int { return &c.MailboxCapacity })},
	{"CYCLESIM_MONITOR_PORT", intSetter(func(c *Config) *int { return &c.MonitorPort })},
	{"CYCLESIM_POLICY", func(c *Config, v string) (err error) {
		c.Policy, err = parsePolicy(v)
		return err
	}},
	{"CYCLESIM_MAX_CYCLES", func(c *Config, v string) (err error) {
		c.MaxCycles, err = strconv.ParseUint(v, 10, 64)
		return err
	}},
	{"CYCLESIM_RECORD", func(c *Config, v string) error {
		c.RecordPath = v
		return nil
	}},
	{"CYCLESIM_TRACE_DEADLOCK", func(c *Config, v string) (err error) {
		c.TraceDeadlock, err = strconv.ParseBool(v)
		return err
	}},
}

func intSetter(field func(c *Config) *int) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		*field(c) = n

		return nil
	}
}

func parsePolicy(s string) (arbitration.Policy, error) {
	switch strings.ToLower(s) {
	case "priority":
		return arbitration.PolicyPriority, nil
	case "cyclic":
		return arbitration.PolicyCyclic, nil
	}

	return arbitration.PolicyPriority,
		fmt.Errorf("unknown policy %q, use priority or cyclic", s)
}

// loadEnvFile loads the variables of the file into the environment without
// overriding the variables already set. A missing default file is not an
// error.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("loading %s: %w", path, err)
}

// applyEnv overrides c with the CYCLESIM_ variables of the environment.
func (c *Config) applyEnv() error {
	for _, s := range envSettings {
		v, ok := os.LookupEnv(s.name)
		if !ok || v == "" {
			continue
		}

		if err := s.apply(c, v); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	return nil
}

// runFlags are the flags of the run command. They are copied into the
// config only when the user set them.
type runFlags struct {
	envFile string
	policy  string
	config  Config
}

func (f *runFlags) register(flags *pflag.FlagSet) {
	d := DefaultConfig()

	flags.StringVar(&f.envFile, "env-file", ".env",
		"the file to load CYCLESIM_ variables from")
	flags.IntVar(&f.config.Producers, "producers", d.Producers,
		"the number of producers")
	flags.IntVar(&f.config.Items, "items", d.Items,
		"the number of items each producer sends")
	flags.IntVar(&f.config.Mailboxes, "mailboxes", d.Mailboxes,
		"the number of mailboxes and consumers")
	flags.IntVar(&f.config.MailboxCapacity, "mailbox-capacity",
		d.MailboxCapacity, "the number of items a mailbox holds")
	flags.StringVar(&f.policy, "policy", "priority",
		"the arbitration policy, priority or cyclic")
	flags.Uint64Var(&f.config.MaxCycles, "max-cycles", d.MaxCycles,
		"stop after this many cycles")
	flags.BoolVar(&f.config.TraceDeadlock, "trace-deadlock", false,
		"log the reasons of every blocked process")
	flags.StringVar(&f.config.RecordPath, "record", "",
		"record stalls into the SQLite database <path>.sqlite3")
	flags.BoolVar(&f.config.RecordCycles, "record-cycles", false,
		"also record a summary of every cycle")
	flags.BoolVar(&f.config.Monitor, "monitor", false,
		"serve the web monitor while running")
	flags.IntVar(&f.config.MonitorPort, "monitor-port", 0,
		"the port of the web monitor, random if unset")
	flags.BoolVar(&f.config.OpenMonitor, "open-monitor", false,
		"open the web monitor in a browser")
	flags.BoolVar(&f.config.KeepServing, "keep-serving", false,
		"keep the monitor serving after the run ends")
}

// resolve builds the config of a run.
func (f *runFlags) resolve(flags *pflag.FlagSet) (Config, error) {
	err := loadEnvFile(f.envFile, flags.Changed("env-file"))
	if err != nil {
		return Config{}, err
	}

	c := DefaultConfig()

	err = c.applyEnv()
	if err != nil {
		return Config{}, err
	}

	flags.Visit(func(fl *pflag.Flag) {
		if err != nil {
			return
		}

		err = f.override(&c, fl.Name)
	})

	if err != nil {
		return Config{}, err
	}

	if c.OpenMonitor || c.KeepServing || c.MonitorPort != 0 {
		c.Monitor = true
	}

	return c, c.validate()
}

func (f *runFlags) override(c *Config, name string) (err error) {
	switch name {
	case "producers":
		c.Producers = f.config.Producers
	case "items":
		c.Items = f.config.Items
	case "mailboxes":
		c.Mailboxes = f.config.Mailboxes
	case "mailbox-capacity":
		c.MailboxCapacity = f.config.MailboxCapacity
	case "policy":
		c.Policy, err = parsePolicy(f.policy)
	case "max-cycles":
		c.MaxCycles = f.config.MaxCycles
	case "trace-deadlock":
		c.TraceDeadlock = f.config.TraceDeadlock
	case "record":
		c.RecordPath = f.config.RecordPath
	case "record-cycles":
		c.RecordCycles = f.config.RecordCycles
	case "monitor":
		c.Monitor = f.config.Monitor
	case "monitor-port":
		c.MonitorPort = f.config.MonitorPort
	case "open-monitor":
		c.OpenMonitor = f.config.OpenMonitor
	case "keep-serving":
		c.KeepServing = f.config.KeepServing
	}

	return err
}

func (c Config) validate() error {
	if c.Producers < 1 || c.Items < 1 || c.Mailboxes < 1 ||
		c.MailboxCapacity < 1 {
		return errors.New(
			"producers, items, mailboxes and mailbox capacity must be positive")
	}

	if c.MaxCycles == 0 {
		return errors.New("max cycles must be positive")
	}

	return nil
}
