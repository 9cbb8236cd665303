package dataplane

import "github.com/sdwan-controller/pkg/flowrule"

// Ensure the server and sessions satisfy the rule-install contract.
var (
	_ flowrule.Installer = (*Server)(nil)
	_ Session            = (*wsSession)(nil)
)
