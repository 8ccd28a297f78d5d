package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/nativebridge/bridge"
)

// AppAvailability answers check(app, success, error): success(true) when
// app is installed, error(false) otherwise.
type AppAvailability struct {
	*bridge.MethodTable

	mu        sync.RWMutex
	installed map[string]bool
}

// NewAppAvailability creates the object with the given apps installed.
func NewAppAvailability(installed ...string) *AppAvailability {
	a := &AppAvailability{
		MethodTable: bridge.NewMethodTable(),
		installed:   make(map[string]bool),
	}
	for _, app := range installed {
		a.installed[app] = true
	}
	a.Add("check", a.check, 3)
	return a
}

// Install marks app as installed.
func (a *AppAvailability) Install(app string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.installed[app] = true
}

// Uninstall marks app as not installed.
func (a *AppAvailability) Uninstall(app string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.installed, app)
}

// Installed returns the installed apps, sorted.
func (a *AppAvailability) Installed() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	apps := make([]string, 0, len(a.installed))
	for app := range a.installed {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

func (a *AppAvailability) check(args []any) (any, error) {
	app, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("check: app must be a string, got %T", args[0])
	}
	success, failure := bridge.CallbackAt(args, 1), bridge.CallbackAt(args, 2)

	a.mu.RLock()
	installed := a.installed[app]
	a.mu.RUnlock()

	log.Debugf("check %s: installed=%t", app, installed)
	if installed {
		success(true)
	} else {
		failure(false)
	}
	return nil, nil
}
