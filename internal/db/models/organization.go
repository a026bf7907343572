// organization.go defines the Organization model, including the per-role
// directory id lists kept on the organization row itself.
package models

import "time"

// Organization represents a hub that users join via entry requests. The
// HubCode is the human-shareable join code. The three id arrays are the
// role directory: they mirror organization_members rows and exist so the
// external directory view can be read in one row fetch.
type Organization struct {
	ID           string
	Name         string
	HubCode      string
	MemberIDs    []string
	ValidatorIDs []string
	AdminIDs     []string
	CreatedAt    time.Time
}
