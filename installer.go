package ioc

import (
	"errors"
	"fmt"

	"github.com/toutaio/toutago-ioc/feed"
)

// unitRegistrar collects an installer's registrations into its module.
type unitRegistrar struct {
	unit *unit
}

// Component implements feed.Registrar.
func (u *unitRegistrar) Component(c feed.Component) error {
	if c.Type == nil {
		return errors.New("component has no type")
	}
	u.unit.components = append(u.unit.components, c)
	return nil
}

// Factory implements feed.Registrar.
func (u *unitRegistrar) Factory(f feed.Factory) error {
	if _, err := parseFunc(f.Func); err != nil {
		return fmt.Errorf("factory %s: %w", f.Name, err)
	}
	if f.Name == "" {
		f.Name = feed.FuncName(f.Func)
	}
	u.unit.factories = append(u.unit.factories, f)
	return nil
}

// runInstallers runs each installer of a module in order. A failing or
// panicking installer is reported once; what it registered before failing
// is kept.
func (r *Resolver) runInstallers(u *unit, installers []feed.Installer) {
	registrar := &unitRegistrar{unit: u}

	for _, installer := range installers {
		if installer == nil {
			continue
		}
		if err := install(installer, registrar); err != nil {
			r.report(unitInstaller, &DiscoveryError{
				Module:    u.name,
				Component: fmt.Sprintf("installer %T", installer),
				Cause:     err,
			})
		}
	}
}

func install(installer feed.Installer, registrar feed.Registrar) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return installer.Install(registrar)
}
