// Package core contains the claim intake domain: the wizard state machine,
// per-step validation, collaborator contracts and the two-phase submission
// protocol. Transport and storage adapters depend on this package; core must
// not depend on them.
package core
