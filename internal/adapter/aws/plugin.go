// Package aws implements the AWS service adapters for sgmap.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	dms "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// Credentials holds a static access key set. Empty means the default chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsSet reports whether static keys were supplied.
func (c Credentials) IsSet() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Config holds AWS credential and region settings.
type Config struct {
	Region      string
	Profile     string
	Credentials Credentials
}

// LoadAWSConfig resolves an aws.Config from a profile, static keys or the default chain.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Credentials.IsSet() {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Credentials.AccessKeyID,
			cfg.Credentials.SecretAccessKey,
			cfg.Credentials.SessionToken,
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// ConfigForRegion returns a copy of cfg scoped to region.
func ConfigForRegion(cfg aws.Config, region string) aws.Config {
	regional := cfg.Copy()
	regional.Region = region
	return regional
}

// ClientSet bundles the regional service clients (interfaces for testability).
type ClientSet struct {
	EC2         EC2API
	ECS         ECSAPI
	ELB         ELBAPI
	RDS         RDSAPI
	Redshift    RedshiftAPI
	Lambda      LambdaAPI
	ElastiCache ElastiCacheAPI
	DMS         DMSAPI
	EMR         EMRAPI
	EKS         EKSAPI
	MemoryDB    MemoryDBAPI
}

// NewClientSet creates real SDK clients from cfg.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		EC2:         ec2.NewFromConfig(cfg),
		ECS:         ecs.NewFromConfig(cfg),
		ELB:         elasticloadbalancingv2.NewFromConfig(cfg),
		RDS:         rds.NewFromConfig(cfg),
		Redshift:    redshift.NewFromConfig(cfg),
		Lambda:      lambda.NewFromConfig(cfg),
		ElastiCache: elasticache.NewFromConfig(cfg),
		DMS:         dms.NewFromConfig(cfg),
		EMR:         emr.NewFromConfig(cfg),
		EKS:         eks.NewFromConfig(cfg),
		MemoryDB:    memorydb.NewFromConfig(cfg),
	}
}

// NewIdentityClients creates the global clients used to describe the account.
func NewIdentityClients(cfg aws.Config) (STSAPI, IAMAPI) {
	return sts.NewFromConfig(cfg), iam.NewFromConfig(cfg)
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithEMRClusterStates overrides the EMR cluster states that are inventoried.
func WithEMRClusterStates(states []string) Option {
	return func(p *Plugin) {
		if len(states) > 0 {
			p.emrStates = states
		}
	}
}

// Plugin holds one region's network lister and service adapters.
type Plugin struct {
	*Network

	region    string
	emrStates []string
	adapters  []adapter.Adapter
}

// New creates a plugin with real clients for region.
func New(cfg aws.Config, region, accountID string, opts ...Option) *Plugin {
	return NewWithClients(region, accountID, NewClientSet(ConfigForRegion(cfg, region)), opts...)
}

// NewWithClients creates a plugin around existing clients.
func NewWithClients(region, accountID string, clients *ClientSet, opts ...Option) *Plugin {
	p := &Plugin{
		Network:   NewNetwork(clients.EC2),
		region:    region,
		emrStates: DefaultEMRClusterStates,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.adapters = []adapter.Adapter{
		NewEC2Adapter(clients.EC2, region, accountID),
		NewECSAdapter(clients.ECS, region, accountID),
		NewELBAdapter(clients.ELB, region, accountID),
		NewRDSAdapter(clients.RDS, region, accountID),
		NewRedshiftAdapter(clients.Redshift, region, accountID),
		NewLambdaAdapter(clients.Lambda, region, accountID),
		NewElastiCacheAdapter(clients.ElastiCache, region, accountID),
		NewDMSAdapter(clients.DMS, region, accountID),
		NewEMRAdapter(clients.EMR, region, accountID, p.emrStates),
		NewEKSAdapter(clients.EKS, region, accountID),
		NewMemoryDBAdapter(clients.MemoryDB, region, accountID),
	}
	return p
}

// Region returns the region this plugin is scoped to.
func (p *Plugin) Region() string {
	return p.region
}

// Adapters returns one adapter per supported service type.
// The same instances are returned on every call so indexes are shared for the run.
func (p *Plugin) Adapters() []adapter.Adapter {
	return p.adapters
}

// scope carries the region and account stamped onto every record.
type scope struct {
	region    string
	accountID string
}

// newResource creates a record with common fields.
func (s scope) newResource(id string, typ resource.ServiceType, status, name string) resource.Resource {
	return resource.Resource{
		ID:        id,
		Type:      typ,
		Provider:  "aws",
		Region:    s.region,
		Account:   s.accountID,
		Name:      name,
		Status:    status,
		Labels:    make(map[string]string),
		Attrs:     make(map[string]string),
		ScannedAt: time.Now(),
	}
}
