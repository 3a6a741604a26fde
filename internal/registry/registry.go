// Package registry resolves package-index credentials and the environment
// variables that point the compiler at private indexes.
package registry

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthr76/relock/internal/config"
	"github.com/anthr76/relock/internal/requirements"
	"github.com/git-lfs/go-netrc/netrc"
)

// Environment variables understood by pip and pip-compile.
const (
	EnvIndexURL      = "PIP_INDEX_URL"
	EnvExtraIndexURL = "PIP_EXTRA_INDEX_URL"
)

// Vars is the registry context for one compiler run.
type Vars struct {
	HaveCredentials bool
	EnvironmentVars map[string]string
}

// Resolver adds credentials to index URLs declared in a requirements file.
type Resolver struct {
	// HostRules are consulted before Netrc.
	HostRules []config.HostRule
	// Netrc contains credentials for private indexes.
	Netrc  *netrc.Netrc
	Logger *slog.Logger
}

// NewResolver creates a Resolver from registry configuration.
// An empty netrc path means ~/.netrc; a missing netrc file is not an error.
func NewResolver(cfg config.RegistryConfig, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Netrc
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".netrc")
	}

	netrcFile, err := netrc.ParseFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("parsing netrc: %w", err)
	}
	if netrcFile == nil {
		netrcFile = &netrc.Netrc{}
	}

	return &Resolver{
		HostRules: cfg.HostRules,
		Netrc:     netrcFile,
		Logger:    logger,
	}, nil
}

// Resolve returns the environment variables for the index URLs in f.
// Only the first --index-url is honoured; extra index URLs are space separated,
// which is the list syntax pip uses for PIP_EXTRA_INDEX_URL.
func (r *Resolver) Resolve(f *requirements.File) Vars {
	vars := Vars{EnvironmentVars: map[string]string{}}
	if f == nil {
		return vars
	}

	if f.IndexURL != "" {
		u, creds := r.withCredentials(f.IndexURL)
		vars.HaveCredentials = vars.HaveCredentials || creds
		vars.EnvironmentVars[EnvIndexURL] = u
	}

	if len(f.ExtraIndexURLs) > 0 {
		extra := make([]string, 0, len(f.ExtraIndexURLs))
		for _, raw := range f.ExtraIndexURLs {
			u, creds := r.withCredentials(raw)
			vars.HaveCredentials = vars.HaveCredentials || creds
			extra = append(extra, u)
		}
		vars.EnvironmentVars[EnvExtraIndexURL] = strings.Join(extra, " ")
	}

	return vars
}

// withCredentials embeds credentials into rawURL when the URL carries none.
// The boolean reports whether credentials were added.
func (r *Resolver) withCredentials(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		r.logger().Warn("registry: could not parse index url", "url", redact(rawURL))
		return rawURL, false
	}
	if u.User != nil {
		return rawURL, false
	}

	login, password, ok := r.lookup(u.Hostname())
	if !ok {
		return rawURL, false
	}

	if password == "" {
		u.User = url.User(login)
	} else {
		u.User = url.UserPassword(login, password)
	}
	r.logger().Debug("registry: added credentials to index url", "host", u.Hostname())
	return u.String(), true
}

// lookup finds credentials for host, preferring host rules over netrc.
func (r *Resolver) lookup(host string) (login, password string, ok bool) {
	for _, rule := range r.HostRules {
		if matchHost(rule.MatchHost, host) && (rule.Username != "" || rule.Password != "") {
			return rule.Username, rule.Password, true
		}
	}

	if r.Netrc != nil {
		if machine := r.Netrc.FindMachine(host, ""); machine != nil && machine.Login != "" {
			return machine.Login, machine.Password, true
		}
	}

	return "", "", false
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// matchHost checks if host matches a host rule pattern.
// "*.example.com" matches example.com and any subdomain; other patterns match exactly.
func matchHost(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	host = strings.ToLower(host)
	if suffix, found := strings.CutPrefix(pattern, "*."); found {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return pattern == host
}

// redact strips userinfo from a URL for logging.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		if at := strings.LastIndex(rawURL, "@"); at != -1 {
			if scheme := strings.Index(rawURL, "://"); scheme != -1 && scheme < at {
				return rawURL[:scheme+3] + "***@" + rawURL[at+1:]
			}
		}
		return rawURL
	}
	return u.Redacted()
}
