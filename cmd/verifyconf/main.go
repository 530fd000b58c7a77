// Command verifyconf validates a MarFS configuration file and,
// optionally, probes the live DAL/MDAL backends it names (spec.md §6:
// "CLI surface (verifyconf-style)"). It has no teacher counterpart — the
// teacher ships no cmd/ tree — so its flag parsing follows the standard
// library's own convention rather than importing a CLI framework the
// rest of the corpus never uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marfs-core/marfs/internal/config"
	"github.com/marfs-core/marfs/internal/metrics"
	"github.com/marfs-core/marfs/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	nsPath     string
	user       string
	checkMDAL  bool
	checkDAL   bool
	recurse    bool
	fix        bool
	all        bool
	help       bool
}

func parseFlags(args []string, errOut *strings.Builder) (options, error) {
	fs := flag.NewFlagSet("verifyconf", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var o options
	fs.StringVar(&o.configPath, "c", "", "path to the MarFS config file (default: MARFSCONFIGRC search order)")
	fs.StringVar(&o.nsPath, "n", "", "namespace path to check")
	fs.StringVar(&o.user, "u", "", "user to check interactive permissions as")
	fs.BoolVar(&o.checkMDAL, "m", false, "check MDAL backends")
	fs.BoolVar(&o.checkDAL, "d", false, "check DAL backends")
	fs.BoolVar(&o.recurse, "r", false, "recurse into namespaces nested below -n")
	fs.BoolVar(&o.fix, "f", false, "attempt to correct issues found")
	fs.BoolVar(&o.all, "a", false, "check every namespace in the config")
	fs.BoolVar(&o.help, "h", false, "show usage")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if !o.checkMDAL && !o.checkDAL {
		o.checkMDAL, o.checkDAL = true, true
	}
	return o, nil
}

const usage = `verifyconf: validate a MarFS configuration and probe its backends

  -c <config>   path to the config file (default: MARFSCONFIGRC search order)
  -n <ns-path>  namespace path to check
  -u <user>     check interactive (iperms) access on top of batch (bperms) access
  -m            check MDAL backends
  -d            check DAL backends
  -r            recurse into namespaces nested below -n
  -f            attempt to correct issues found
  -a            check every namespace
  -h            show this message

Exit status: 0 on success, a positive count of uncorrected issues, or a
negative value (reported as exit code 255) on a fatal error.
`

// run implements the CLI and returns a process exit code: 0 for a clean
// pass, a positive issue count, or 255 standing in for "negative ==
// fatal" (spec.md §6), since os.Exit only carries an unsigned byte.
func run(args []string, stdout, stderr *os.File) int {
	var errBuf strings.Builder
	opts, err := parseFlags(args, &errBuf)
	if err != nil {
		fmt.Fprint(stderr, errBuf.String())
		return 255
	}
	if opts.help {
		fmt.Fprint(stdout, usage)
		return 0
	}

	log := logging.New(logging.Config{Level: logging.Info, Output: stderr}).WithComponent("verifyconf")

	cfgPath := opts.configPath
	if cfgPath == "" {
		cfgPath, err = config.Locate()
		if err != nil {
			log.Errorf("locate config: %v", err)
			return 255
		}
	}

	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		log.Errorf("load config %s: %v", cfgPath, err)
		return 255
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("validate config %s: %v", cfgPath, err)
		return 255
	}

	targets, err := selectNamespaces(cfg, opts)
	if err != nil {
		log.Errorf("%v", err)
		return 255
	}
	if len(targets) == 0 {
		fmt.Fprintln(stdout, "verifyconf: no namespaces selected")
		return 0
	}

	collector := metrics.NewCollector("verifyconf")

	ctx := context.Background()
	issues := 0
	for _, ns := range targets {
		issues += checkNamespace(ctx, log, ns, opts, collector)
	}

	if issues == 0 {
		fmt.Fprintln(stdout, "verifyconf: OK")
	} else {
		fmt.Fprintf(stdout, "verifyconf: %d uncorrected issue(s)\n", issues)
	}
	for metric, value := range collector.Snapshot() {
		log.Debugf("%s=%v", metric, value)
	}
	return issues
}

// selectNamespaces resolves which namespaces -n/-a/-r name.
func selectNamespaces(cfg *config.Configuration, opts options) ([]*config.Namespace, error) {
	if opts.all {
		out := make([]*config.Namespace, len(cfg.Namespaces))
		for i := range cfg.Namespaces {
			out[i] = &cfg.Namespaces[i]
		}
		return out, nil
	}
	if opts.nsPath == "" {
		return nil, fmt.Errorf("either -a or -n must be given")
	}
	pos, _, err := cfg.Traverse(opts.nsPath, true)
	if err != nil {
		return nil, fmt.Errorf("resolve -n %q: %w", opts.nsPath, err)
	}
	out := []*config.Namespace{pos.NS}
	if opts.recurse {
		for i := range cfg.Namespaces {
			ns := &cfg.Namespaces[i]
			if ns == pos.NS {
				continue
			}
			if strings.HasPrefix(strings.Trim(ns.MntPath, "/"), strings.Trim(pos.NS.MntPath, "/")+"/") {
				out = append(out, ns)
			}
		}
	}
	return out, nil
}

// checkNamespace runs the requested checks against one namespace and
// returns the number of issues left uncorrected. Each check's outcome
// and latency is reported to collector so a run's end-of-process summary
// reflects every backend probe actually attempted.
func checkNamespace(ctx context.Context, log *logging.Logger, ns *config.Namespace, opts options, collector *metrics.Collector) int {
	issues := 0
	nsLog := log.WithField("namespace", ns.Name)

	interactive := opts.user != ""
	want := config.PermReadMeta | config.PermReadData
	pos := config.Position{NS: ns}
	if err := pos.CheckPerm(want, interactive); err != nil {
		nsLog.Warnf("permission check failed: %v", err)
		issues++
	}

	if opts.checkMDAL {
		if err := checkMDAL(ctx, ns, opts.fix, collector); err != nil {
			nsLog.Warnf("mdal check failed: %v", err)
			issues++
		}
	}

	if opts.checkDAL {
		for i := range ns.RepoRanges {
			rr := &ns.RepoRanges[i]
			if rr.Repo == nil {
				nsLog.Warnf("repo range %d has no resolved repo", i)
				issues++
				continue
			}
			if err := checkDAL(ctx, rr.Repo, collector); err != nil {
				nsLog.Warnf("dal check failed for repo %q: %v", rr.Repo.Name, err)
				issues++
			}
		}
	}

	return issues
}

func checkMDAL(ctx context.Context, ns *config.Namespace, fix bool, collector *metrics.Collector) error {
	started := time.Now()
	cfg := map[string]interface{}{"root": ns.MDPath}
	_, err := ns.FileBackend(cfg)
	if err != nil && fix {
		if mkErr := os.MkdirAll(ns.MDPath, 0755); mkErr == nil {
			_, err = ns.FileBackend(cfg)
		}
	}
	collector.RecordOperation("mdal_check", time.Since(started), 0, err == nil)
	if err != nil {
		collector.RecordError("mdal_check", err)
	}
	return err
}

func checkDAL(ctx context.Context, r *config.Repo, collector *metrics.Collector) error {
	started := time.Now()
	host, err := r.SelectHost()
	if err != nil {
		return err
	}
	_, err = r.Backend(map[string]interface{}{"root": host})
	r.RecordHostResult(host, err)
	collector.RecordOperation("dal_check", time.Since(started), 0, err == nil)
	if err != nil {
		collector.RecordError("dal_check", err)
	}
	return err
}
