package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	dms "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice"
	dmstypes "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	memorydbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

var (
	_ adapter.Preloadable = (*RDSAdapter)(nil)
	_ adapter.Preloadable = (*RedshiftAdapter)(nil)
	_ adapter.Preloadable = (*ElastiCacheAdapter)(nil)
	_ adapter.Preloadable = (*DMSAdapter)(nil)
	_ adapter.Preloadable = (*MemoryDBAdapter)(nil)
)

// RDSAdapter indexes DB instances by VPC security group.
type RDSAdapter struct {
	*preloaded
	scope
	client RDSAPI
}

// NewRDSAdapter creates the RDS adapter.
func NewRDSAdapter(client RDSAPI, region, accountID string) *RDSAdapter {
	a := &RDSAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceRDS, a.scan)
	return a
}

func (a *RDSAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}

		for _, instance := range output.DBInstances {
			resources = append(resources, a.convertInstance(instance))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (a *RDSAdapter) convertInstance(instance rdstypes.DBInstance) resource.Resource {
	id := aws.ToString(instance.DBInstanceIdentifier)
	r := a.newResource(id, resource.ServiceRDS, aws.ToString(instance.DBInstanceStatus), id)
	for _, tag := range instance.TagList {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	for _, sg := range instance.VpcSecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(sg.VpcSecurityGroupId))
	}
	r.Attrs["engine"] = aws.ToString(instance.Engine)
	r.Attrs["instance_class"] = aws.ToString(instance.DBInstanceClass)
	return r
}

// RedshiftAdapter indexes warehouse clusters by VPC security group.
type RedshiftAdapter struct {
	*preloaded
	scope
	client RedshiftAPI
}

// NewRedshiftAdapter creates the Redshift adapter.
func NewRedshiftAdapter(client RedshiftAPI, region, accountID string) *RedshiftAdapter {
	a := &RedshiftAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceRedshift, a.scan)
	return a
}

func (a *RedshiftAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.DescribeClusters(ctx, &redshift.DescribeClustersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe redshift clusters: %w", err)
		}

		for _, cluster := range output.Clusters {
			resources = append(resources, a.convertCluster(cluster))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (a *RedshiftAdapter) convertCluster(cluster redshifttypes.Cluster) resource.Resource {
	id := aws.ToString(cluster.ClusterIdentifier)
	r := a.newResource(id, resource.ServiceRedshift, aws.ToString(cluster.ClusterStatus), id)
	for _, tag := range cluster.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	for _, sg := range cluster.VpcSecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(sg.VpcSecurityGroupId))
	}
	r.Attrs["node_type"] = aws.ToString(cluster.NodeType)
	return r
}

// ElastiCacheAdapter indexes cache clusters by security group.
type ElastiCacheAdapter struct {
	*preloaded
	scope
	client ElastiCacheAPI
}

// NewElastiCacheAdapter creates the ElastiCache adapter.
func NewElastiCacheAdapter(client ElastiCacheAPI, region, accountID string) *ElastiCacheAdapter {
	a := &ElastiCacheAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceElastiCache, a.scan)
	return a
}

func (a *ElastiCacheAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe cache clusters: %w", err)
		}

		for _, cluster := range output.CacheClusters {
			resources = append(resources, a.convertCluster(cluster))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (a *ElastiCacheAdapter) convertCluster(cluster ectypes.CacheCluster) resource.Resource {
	id := aws.ToString(cluster.CacheClusterId)
	r := a.newResource(id, resource.ServiceElastiCache, aws.ToString(cluster.CacheClusterStatus), id)
	for _, sg := range cluster.SecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(sg.SecurityGroupId))
	}
	r.Attrs["engine"] = aws.ToString(cluster.Engine)
	r.Attrs["node_type"] = aws.ToString(cluster.CacheNodeType)
	return r
}

// DMSAdapter indexes replication instances by VPC security group.
type DMSAdapter struct {
	*preloaded
	scope
	client DMSAPI
}

// NewDMSAdapter creates the Database Migration Service adapter.
func NewDMSAdapter(client DMSAPI, region, accountID string) *DMSAdapter {
	a := &DMSAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceDMS, a.scan)
	return a
}

func (a *DMSAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.DescribeReplicationInstances(ctx, &dms.DescribeReplicationInstancesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe replication instances: %w", err)
		}

		for _, instance := range output.ReplicationInstances {
			resources = append(resources, a.convertInstance(instance))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (a *DMSAdapter) convertInstance(instance dmstypes.ReplicationInstance) resource.Resource {
	r := a.newResource(
		aws.ToString(instance.ReplicationInstanceArn),
		resource.ServiceDMS,
		aws.ToString(instance.ReplicationInstanceStatus),
		aws.ToString(instance.ReplicationInstanceIdentifier),
	)
	for _, sg := range instance.VpcSecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(sg.VpcSecurityGroupId))
	}
	r.Attrs["instance_class"] = aws.ToString(instance.ReplicationInstanceClass)
	return r
}

// MemoryDBAdapter indexes MemoryDB clusters by security group.
type MemoryDBAdapter struct {
	*preloaded
	scope
	client MemoryDBAPI
}

// NewMemoryDBAdapter creates the MemoryDB adapter.
func NewMemoryDBAdapter(client MemoryDBAPI, region, accountID string) *MemoryDBAdapter {
	a := &MemoryDBAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceMemoryDB, a.scan)
	return a
}

func (a *MemoryDBAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var nextToken *string

	for {
		output, err := a.client.DescribeClusters(ctx, &memorydb.DescribeClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe memorydb clusters: %w", err)
		}

		for _, cluster := range output.Clusters {
			resources = append(resources, a.convertCluster(cluster))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func (a *MemoryDBAdapter) convertCluster(cluster memorydbtypes.Cluster) resource.Resource {
	r := a.newResource(aws.ToString(cluster.ARN), resource.ServiceMemoryDB, aws.ToString(cluster.Status), aws.ToString(cluster.Name))
	for _, sg := range cluster.SecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(sg.SecurityGroupId))
	}
	r.Attrs["node_type"] = aws.ToString(cluster.NodeType)
	return r
}
