// Package resource defines the unified resource model for sgmap.
package resource

import "time"

// ServiceType identifies a kind of AWS resource that can sit behind a network interface.
type ServiceType string

const (
	ServiceEC2         ServiceType = "ec2"
	ServiceECS         ServiceType = "ecs"
	ServiceELBv2       ServiceType = "elbv2"
	ServiceRDS         ServiceType = "rds"
	ServiceRedshift    ServiceType = "redshift"
	ServiceLambda      ServiceType = "lambda"
	ServiceElastiCache ServiceType = "elasticache"
	ServiceDMS         ServiceType = "dms"
	ServiceEMR         ServiceType = "emr"
	ServiceEKS         ServiceType = "eks"
	ServiceMemoryDB    ServiceType = "memorydb"
)

// ServiceTypes lists every supported service type in report column order.
var ServiceTypes = []ServiceType{
	ServiceEC2,
	ServiceECS,
	ServiceELBv2,
	ServiceRDS,
	ServiceRedshift,
	ServiceLambda,
	ServiceElastiCache,
	ServiceDMS,
	ServiceEMR,
	ServiceEKS,
	ServiceMemoryDB,
}

// ParseServiceType returns the ServiceType named s.
func ParseServiceType(s string) (ServiceType, bool) {
	for _, t := range ServiceTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Resource represents a cloud resource in unified format.
type Resource struct {
	ID             string            `json:"id"`              // Unique identifier (e.g., "i-abc123")
	Type           ServiceType       `json:"type"`            // Resource type (e.g., "ec2", "rds")
	Provider       string            `json:"provider"`        // Cloud provider (e.g., "aws")
	Region         string            `json:"region"`          // Region (e.g., "us-east-1")
	Account        string            `json:"account"`         // Account ID
	Name           string            `json:"name"`            // Human-readable name
	Status         string            `json:"status"`          // Current status (e.g., "running")
	SecurityGroups []string          `json:"security_groups"` // Security group memberships
	Labels         map[string]string `json:"labels"`          // Normalized labels/tags
	Attrs          map[string]string `json:"attrs"`           // Provider-specific attributes
	ScannedAt      time.Time         `json:"scanned_at"`      // When this was scanned
}

// DisplayName returns the name, or the ID when the resource has no name.
func (r Resource) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// GroupRef is a security group as referenced from a network interface.
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NetworkInterface is the subset of ENI metadata used for classification.
type NetworkInterface struct {
	ID               string            `json:"id"`
	Description      string            `json:"description"`
	InterfaceType    string            `json:"interface_type"`
	Status           string            `json:"status"`
	VpcID            string            `json:"vpc_id"`
	RequesterID      string            `json:"requester_id,omitempty"`
	RequesterManaged bool              `json:"requester_managed"`
	InstanceID       string            `json:"instance_id,omitempty"`
	InstanceOwnerID  string            `json:"instance_owner_id,omitempty"`
	Groups           []GroupRef        `json:"groups"`
	Labels           map[string]string `json:"labels"`
}

// SecurityGroup identifies a group to audit.
type SecurityGroup struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	VpcID       string            `json:"vpc_id,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}
