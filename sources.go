package research

import (
	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/integration/archive"
	"github.com/brianmills2718/osint-deep-research/integration/browser"
	"github.com/brianmills2718/osint-deep-research/integration/contracts"
	"github.com/brianmills2718/osint-deep-research/integration/jobs"
	"github.com/brianmills2718/osint-deep-research/integration/media"
	"github.com/brianmills2718/osint-deep-research/integration/register"
	"github.com/brianmills2718/osint-deep-research/integration/social"
	"github.com/brianmills2718/osint-deep-research/integration/websearch"
	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/registry"
)

// WarmSources registers every enabled source's factory on reg and probes
// each one once by constructing it, so a long-lived caller (cmd/researchd,
// in particular) can report real availability via ListSources before any
// run has touched that source. Run uses registerSources directly and
// never warms, since its registry is throwaway for the one call.
func WarmSources(reg *registry.Registry, cfg *config.Config, logger logging.Logger) {
	registerSources(reg, cfg, logger)
	for _, id := range reg.IDs() {
		reg.Get(id) //nolint:errcheck // failure is recorded on the registry's status table
	}
}

// registerSources registers a factory for every concrete integration this
// module ships whose config entry is enabled. Registry.Get defers actual
// construction (and credential lookup) until a run selects that source,
// so an enabled-but-unconfigured source only fails when used, not at
// startup, and a disabled source (browser-scraper, by default) is simply
// never registered.
func registerSources(reg *registry.Registry, cfg *config.Config, logger logging.Logger) {
	if sc, ok := cfg.Sources[contracts.ID]; ok && sc.Enabled {
		reg.Register(contracts.ID, func() (integration.Integration, error) {
			return contracts.New(cfg.CredentialFor(contracts.ID), sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[jobs.ID]; ok && sc.Enabled {
		reg.Register(jobs.ID, func() (integration.Integration, error) {
			return jobs.New(cfg.CredentialFor(jobs.ID), sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[media.ID]; ok && sc.Enabled {
		reg.Register(media.ID, func() (integration.Integration, error) {
			return media.New(cfg.CredentialFor(media.ID), sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[register.ID]; ok && sc.Enabled {
		reg.Register(register.ID, func() (integration.Integration, error) {
			return register.New(sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[websearch.ID]; ok && sc.Enabled {
		reg.Register(websearch.ID, func() (integration.Integration, error) {
			return websearch.New(cfg.CredentialFor(websearch.ID), sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[social.ID]; ok && sc.Enabled {
		reg.Register(social.ID, func() (integration.Integration, error) {
			return social.New(cfg.CredentialFor(social.ID), sc.Timeout)
		})
	}
	if sc, ok := cfg.Sources[archive.ID]; ok && sc.Enabled {
		reg.Register(archive.ID, func() (integration.Integration, error) {
			return archive.New(sc.Origin, logger)
		})
	}
	if sc, ok := cfg.Sources[browser.ID]; ok && sc.Enabled {
		reg.Register(browser.ID, func() (integration.Integration, error) {
			return browser.New(sc.Enabled, sc.Timeout)
		})
	}
}
