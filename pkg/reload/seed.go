// Package reload applies the registrations declared in a config file to the
// store and keeps them in sync when the file changes.
package reload

import (
	"context"
	"fmt"

	"github.com/gridctl/toolgate/pkg/config"
	"github.com/gridctl/toolgate/pkg/store"
)

// Declared holds the registrations a config file asks for.
type Declared struct {
	Applications []store.Application
	Servers      []store.Server
	Policies     []store.AccessPolicy
}

// FromConfig converts the seed sections of cfg into store entities.
func FromConfig(cfg *config.Config) (*Declared, error) {
	d := &Declared{}
	for _, a := range cfg.Applications {
		d.Applications = append(d.Applications, store.Application{
			Name:                    a.Name,
			BaseURL:                 a.BaseURL,
			OpenAPIPath:             a.OpenAPIPath,
			Domain:                  a.Domain,
			IncludeUnreachableTools: a.IncludeUnreachableTools,
			SelectedOperationKeys:   a.Selected,
			Enabled:                 !a.Disabled,
		})
	}
	for _, s := range cfg.Servers {
		d.Servers = append(d.Servers, store.Server{
			Name:              s.Name,
			BaseURL:           s.BaseURL,
			Domain:            s.Domain,
			SelectedToolNames: s.Selected,
			Enabled:           !s.Disabled,
		})
	}
	for _, p := range cfg.Policies {
		mode, err := store.ParseMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("policy %s/%s: %w", p.Owner, p.Tool, err)
		}
		d.Policies = append(d.Policies, store.AccessPolicy{
			OwnerID:       p.Owner,
			ToolID:        p.Tool,
			Mode:          mode,
			AllowedUsers:  p.Users,
			AllowedGroups: p.Groups,
		})
	}
	return d, nil
}

// Seed writes every registration and policy row declared in cfg.
func Seed(ctx context.Context, w store.RegistrationWriter, cfg *config.Config) error {
	d, err := FromConfig(cfg)
	if err != nil {
		return err
	}
	for _, app := range d.Applications {
		if err := w.UpsertApplication(ctx, app); err != nil {
			return fmt.Errorf("seeding application %s: %w", app.Name, err)
		}
	}
	for _, srv := range d.Servers {
		if err := w.UpsertServer(ctx, srv); err != nil {
			return fmt.Errorf("seeding server %s: %w", srv.Name, err)
		}
	}
	for _, p := range d.Policies {
		if err := w.UpsertPolicy(ctx, p); err != nil {
			return fmt.Errorf("seeding policy %s/%s: %w", p.OwnerID, p.ToolID, err)
		}
	}
	return nil
}
