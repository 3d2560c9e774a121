// Package classify infers which service types own a set of network interfaces.
//
// Classification is a best-effort heuristic over AWS naming conventions
// (descriptions, interface types, attached group names). Rules live in an
// ordered table so a new service type is a data change.
package classify

import (
	"fmt"
	"strings"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// Matcher reports whether an interface looks like it belongs to a service.
type Matcher func(iface resource.NetworkInterface) bool

// Rule tags interfaces that satisfy Match with Service.
type Rule struct {
	Service resource.ServiceType
	Name    string
	Match   Matcher
}

// DescriptionContains matches when the description contains any of substrs.
func DescriptionContains(substrs ...string) Matcher {
	return func(iface resource.NetworkInterface) bool {
		for _, s := range substrs {
			if strings.Contains(iface.Description, s) {
				return true
			}
		}
		return false
	}
}

// DescriptionPrefix matches when the description starts with prefix.
func DescriptionPrefix(prefix string) Matcher {
	return func(iface resource.NetworkInterface) bool {
		return strings.HasPrefix(iface.Description, prefix)
	}
}

// InterfaceType matches the EC2 interface type exactly.
func InterfaceType(typ string) Matcher {
	return func(iface resource.NetworkInterface) bool {
		return iface.InterfaceType == typ
	}
}

// GroupNameContains matches when any attached group name contains s.
func GroupNameContains(s string) Matcher {
	return func(iface resource.NetworkInterface) bool {
		for _, g := range iface.Groups {
			if strings.Contains(g.Name, s) {
				return true
			}
		}
		return false
	}
}

// HasInstanceAttachment matches interfaces attached to an EC2 instance.
func HasInstanceAttachment() Matcher {
	return func(iface resource.NetworkInterface) bool {
		return iface.InstanceID != ""
	}
}

// TagKeyPresent matches when the interface carries any of keys.
func TagKeyPresent(keys ...string) Matcher {
	return func(iface resource.NetworkInterface) bool {
		for _, k := range keys {
			if _, ok := iface.Labels[k]; ok {
				return true
			}
		}
		return false
	}
}

// Any matches when at least one of ms matches.
func Any(ms ...Matcher) Matcher {
	return func(iface resource.NetworkInterface) bool {
		for _, m := range ms {
			if m(iface) {
				return true
			}
		}
		return false
	}
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Service: resource.ServiceLambda,
			Name:    "lambda-eni",
			Match:   Any(InterfaceType("lambda"), DescriptionContains("AWS Lambda VPC ENI")),
		},
		{
			Service: resource.ServiceEMR,
			Name:    "emr-managed-group",
			Match:   GroupNameContains("ElasticMapReduce"),
		},
		{
			Service: resource.ServiceEC2,
			Name:    "instance-attachment",
			Match:   HasInstanceAttachment(),
		},
		{
			Service: resource.ServiceECS,
			Name:    "ecs-task",
			Match:   DescriptionContains("arn:aws:ecs"),
		},
		{
			Service: resource.ServiceELBv2,
			Name:    "elbv2",
			Match:   DescriptionContains("ELB app/", "ELB net/"),
		},
		{
			Service: resource.ServiceRDS,
			Name:    "rds",
			Match:   DescriptionContains("RDSNetworkInterface"),
		},
		{
			Service: resource.ServiceDMS,
			Name:    "dms",
			Match:   DescriptionContains("DMSNetworkInterface"),
		},
		{
			Service: resource.ServiceRedshift,
			Name:    "redshift",
			Match:   DescriptionContains("RedshiftNetworkInterface"),
		},
		{
			Service: resource.ServiceElastiCache,
			Name:    "elasticache",
			Match:   DescriptionContains("ElastiCache"),
		},
		{
			Service: resource.ServiceEKS,
			Name:    "eks",
			Match: Any(
				DescriptionPrefix("Amazon EKS"),
				TagKeyPresent("cluster.k8s.amazonaws.com/name", "eks:eni:owner"),
			),
		},
		{
			Service: resource.ServiceMemoryDB,
			Name:    "memorydb",
			Match:   DescriptionContains("MemoryDB"),
		},
	}
}

// Classifier evaluates an ordered rule table.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules, evaluated in the given order.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// NewDefault creates a classifier over DefaultRules followed by extra.
func NewDefault(extra ...Rule) *Classifier {
	return New(append(DefaultRules(), extra...))
}

// Classify returns the candidate service types for a group's interfaces.
// Every rule is checked against every interface. Types are returned once,
// in rule table order. No match is an empty slice.
func (c *Classifier) Classify(ifaces []resource.NetworkInterface) []resource.ServiceType {
	types := []resource.ServiceType{}
	seen := make(map[resource.ServiceType]bool)

	for _, rule := range c.rules {
		if seen[rule.Service] {
			continue
		}
		for _, iface := range ifaces {
			if rule.Match(iface) {
				seen[rule.Service] = true
				types = append(types, rule.Service)
				break
			}
		}
	}

	return types
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

// Spec is a rule expressed as data, as read from configuration.
// All non-empty conditions must hold.
type Spec struct {
	Service             string
	DescriptionContains string
	DescriptionPrefix   string
	InterfaceType       string
	TagKey              string
	GroupNameContains   string
}

// FromSpec builds a rule from its data form.
func FromSpec(spec Spec) (Rule, error) {
	typ, ok := resource.ParseServiceType(spec.Service)
	if !ok {
		return Rule{}, fmt.Errorf("classify rule: unknown service %q", spec.Service)
	}

	var all []Matcher
	if spec.DescriptionContains != "" {
		all = append(all, DescriptionContains(spec.DescriptionContains))
	}
	if spec.DescriptionPrefix != "" {
		all = append(all, DescriptionPrefix(spec.DescriptionPrefix))
	}
	if spec.InterfaceType != "" {
		all = append(all, InterfaceType(spec.InterfaceType))
	}
	if spec.TagKey != "" {
		all = append(all, TagKeyPresent(spec.TagKey))
	}
	if spec.GroupNameContains != "" {
		all = append(all, GroupNameContains(spec.GroupNameContains))
	}
	if len(all) == 0 {
		return Rule{}, fmt.Errorf("classify rule for %s: no conditions", typ)
	}

	return Rule{
		Service: typ,
		Name:    "custom-" + string(typ),
		Match: func(iface resource.NetworkInterface) bool {
			for _, m := range all {
				if !m(iface) {
					return false
				}
			}
			return true
		},
	}, nil
}

// FromSpecs builds rules for every spec, stopping at the first invalid one.
func FromSpecs(specs []Spec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
