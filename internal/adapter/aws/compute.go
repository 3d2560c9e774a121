package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// ecsDescribeBatch is the DescribeServices limit per call.
const ecsDescribeBatch = 10

// DefaultEMRClusterStates are the cluster states that still hold network interfaces.
var DefaultEMRClusterStates = []string{"STARTING", "BOOTSTRAPPING", "RUNNING", "WAITING"}

var (
	_ adapter.Preloadable = (*ECSAdapter)(nil)
	_ adapter.Preloadable = (*LambdaAdapter)(nil)
	_ adapter.Preloadable = (*EMRAdapter)(nil)
	_ adapter.Preloadable = (*EKSAdapter)(nil)
)

// ECSAdapter indexes ECS services by their awsvpc security groups.
type ECSAdapter struct {
	*preloaded
	scope
	client ECSAPI
}

// NewECSAdapter creates the ECS service adapter.
func NewECSAdapter(client ECSAPI, region, accountID string) *ECSAdapter {
	a := &ECSAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceECS, a.scan)
	return a
}

func (a *ECSAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	clusters, err := a.listClusters(ctx)
	if err != nil {
		return nil, err
	}

	var resources []resource.Resource
	for _, cluster := range clusters {
		arns, err := a.listServices(ctx, cluster)
		if err != nil {
			return nil, err
		}

		for start := 0; start < len(arns); start += ecsDescribeBatch {
			end := min(start+ecsDescribeBatch, len(arns))
			output, err := a.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(cluster),
				Services: arns[start:end],
			})
			if err != nil {
				return nil, fmt.Errorf("describe services: %w", err)
			}
			for _, svc := range output.Services {
				resources = append(resources, a.convertService(svc))
			}
		}
	}

	return resources, nil
}

func (a *ECSAdapter) listClusters(ctx context.Context) ([]string, error) {
	var clusters []string
	var nextToken *string

	for {
		output, err := a.client.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list clusters: %w", err)
		}
		clusters = append(clusters, output.ClusterArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return clusters, nil
}

func (a *ECSAdapter) listServices(ctx context.Context, cluster string) ([]string, error) {
	var arns []string
	var nextToken *string

	for {
		output, err := a.client.ListServices(ctx, &ecs.ListServicesInput{
			Cluster:   aws.String(cluster),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		arns = append(arns, output.ServiceArns...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return arns, nil
}

func (a *ECSAdapter) convertService(svc ecstypes.Service) resource.Resource {
	r := a.newResource(aws.ToString(svc.ServiceArn), resource.ServiceECS, aws.ToString(svc.Status), aws.ToString(svc.ServiceName))
	for _, tag := range svc.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	if svc.NetworkConfiguration != nil && svc.NetworkConfiguration.AwsvpcConfiguration != nil {
		r.SecurityGroups = groupIDs(nil, svc.NetworkConfiguration.AwsvpcConfiguration.SecurityGroups)
	}
	r.Attrs["cluster"] = aws.ToString(svc.ClusterArn)
	r.Attrs["launch_type"] = string(svc.LaunchType)
	r.Attrs["desired"] = strconv.Itoa(int(svc.DesiredCount))
	r.Attrs["running"] = strconv.Itoa(int(svc.RunningCount))
	return r
}

// LambdaAdapter indexes VPC-attached functions.
type LambdaAdapter struct {
	*preloaded
	scope
	client LambdaAPI
}

// NewLambdaAdapter creates the function adapter.
func NewLambdaAdapter(client LambdaAPI, region, accountID string) *LambdaAdapter {
	a := &LambdaAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceLambda, a.scan)
	return a
}

func (a *LambdaAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			resources = append(resources, a.convertFunction(fn))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return resources, nil
}

func (a *LambdaAdapter) convertFunction(fn lambdatypes.FunctionConfiguration) resource.Resource {
	status := string(fn.State)
	if status == "" {
		status = "active"
	}
	r := a.newResource(aws.ToString(fn.FunctionArn), resource.ServiceLambda, status, aws.ToString(fn.FunctionName))
	r.Attrs["runtime"] = string(fn.Runtime)
	if fn.VpcConfig != nil {
		r.SecurityGroups = groupIDs(nil, fn.VpcConfig.SecurityGroupIds)
		r.Attrs["vpc_id"] = aws.ToString(fn.VpcConfig.VpcId)
	}
	return r
}

// EMRAdapter indexes live EMR clusters by their managed and additional groups.
type EMRAdapter struct {
	*preloaded
	scope
	client EMRAPI
	states []emrtypes.ClusterState
}

// NewEMRAdapter creates the EMR adapter. Only clusters in states are inventoried.
func NewEMRAdapter(client EMRAPI, region, accountID string, states []string) *EMRAdapter {
	if len(states) == 0 {
		states = DefaultEMRClusterStates
	}
	a := &EMRAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	for _, s := range states {
		a.states = append(a.states, emrtypes.ClusterState(s))
	}
	a.preloaded = newPreloaded(resource.ServiceEMR, a.scan)
	return a
}

func (a *EMRAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.ListClusters(ctx, &emr.ListClustersInput{
			ClusterStates: a.states,
			Marker:        marker,
		})
		if err != nil {
			return nil, fmt.Errorf("list emr clusters: %w", err)
		}

		for _, summary := range output.Clusters {
			desc, err := a.client.DescribeCluster(ctx, &emr.DescribeClusterInput{ClusterId: summary.Id})
			if err != nil {
				return nil, fmt.Errorf("describe emr cluster %s: %w", aws.ToString(summary.Id), err)
			}
			if desc.Cluster != nil {
				resources = append(resources, a.convertCluster(desc.Cluster))
			}
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (a *EMRAdapter) convertCluster(cluster *emrtypes.Cluster) resource.Resource {
	status := "unknown"
	if cluster.Status != nil {
		status = string(cluster.Status.State)
	}
	r := a.newResource(aws.ToString(cluster.Id), resource.ServiceEMR, status, aws.ToString(cluster.Name))
	for _, tag := range cluster.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	if attrs := cluster.Ec2InstanceAttributes; attrs != nil {
		r.SecurityGroups = groupIDs(
			[]*string{attrs.EmrManagedMasterSecurityGroup, attrs.EmrManagedSlaveSecurityGroup, attrs.ServiceAccessSecurityGroup},
			attrs.AdditionalMasterSecurityGroups,
			attrs.AdditionalSlaveSecurityGroups,
		)
	}
	r.Attrs["release"] = aws.ToString(cluster.ReleaseLabel)
	return r
}

// EKSAdapter indexes EKS clusters by their cluster and control plane groups.
type EKSAdapter struct {
	*preloaded
	scope
	client EKSAPI
}

// NewEKSAdapter creates the EKS adapter.
func NewEKSAdapter(client EKSAPI, region, accountID string) *EKSAdapter {
	a := &EKSAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceEKS, a.scan)
	return a
}

func (a *EKSAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var nextToken *string

	for {
		listOutput, err := a.client.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("list eks clusters: %w", err)
		}

		for _, name := range listOutput.Clusters {
			descOutput, err := a.client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, fmt.Errorf("describe eks cluster %s: %w", name, err)
			}
			if descOutput.Cluster != nil {
				resources = append(resources, a.convertCluster(descOutput.Cluster))
			}
		}

		if listOutput.NextToken == nil {
			break
		}
		nextToken = listOutput.NextToken
	}

	return resources, nil
}

func (a *EKSAdapter) convertCluster(cluster *ekstypes.Cluster) resource.Resource {
	r := a.newResource(aws.ToString(cluster.Arn), resource.ServiceEKS, string(cluster.Status), aws.ToString(cluster.Name))
	for k, v := range cluster.Tags {
		r.Labels[k] = v
	}
	if vpc := cluster.ResourcesVpcConfig; vpc != nil {
		r.SecurityGroups = groupIDs([]*string{vpc.ClusterSecurityGroupId}, vpc.SecurityGroupIds)
		r.Attrs["vpc_id"] = aws.ToString(vpc.VpcId)
	}
	r.Attrs["version"] = aws.ToString(cluster.Version)
	return r
}
