// Package dcim defines the external boundary through which the core
// consumes network device inventory. The core never owns this schema
// (spec.md's non-goals exclude the DCIM relational store and its CRUD
// views); it only depends on this interface.
package dcim

import "context"

// Device is the minimal shape the core needs from inventory: identity,
// reachability, platform hints, and the credential-discovery state
// attached to it.
type Device struct {
	ID                   int64
	Name                 string
	PrimaryIP4           string
	SSHPort              int
	Vendor               string
	PlatformType         string
	PagingDisableCmd     string
	Site                 string
	Role                 string
	Status               string
	CredentialID         string
	CredentialTestedAt   string
	CredentialTestResult string
}

// HasPrimaryIP4 reports whether the device has a usable address. Devices
// without one are skipped by both the runner and discovery (counted in
// neither success nor failure).
func (d Device) HasPrimaryIP4() bool {
	return d.PrimaryIP4 != ""
}

// Filter selects a device set by the fields spec.md §3's JobDefinition
// names. Empty fields are unconstrained.
type Filter struct {
	Site        string
	Role        string
	Platform    string
	Status      string
	NamePattern string
	Limit       int
}

// Update is the mutation surface the core uses to record credential
// test results and preferred-credential assignment back to inventory.
type Update struct {
	CredentialID         *string
	CredentialTestedAt   *string
	CredentialTestResult *string
}

// Repository is the query/mutation interface the core consumes. It is
// satisfied by internal/store.DCIM for tests and local development; a
// production deployment points it at a real DCIM system instead.
type Repository interface {
	Query(ctx context.Context, filter Filter) ([]Device, error)
	Get(ctx context.Context, id int64) (*Device, error)
	UpdateDevice(ctx context.Context, id int64, upd Update) error
}
