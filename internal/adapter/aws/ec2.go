package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

var _ adapter.Lookupable = (*EC2Adapter)(nil)

// EC2Adapter resolves instances with a filtered DescribeInstances per group.
type EC2Adapter struct {
	scope
	client EC2API
}

// NewEC2Adapter creates the instance adapter.
func NewEC2Adapter(client EC2API, region, accountID string) *EC2Adapter {
	return &EC2Adapter{scope: scope{region: region, accountID: accountID}, client: client}
}

// Type returns the service type.
func (a *EC2Adapter) Type() resource.ServiceType {
	return resource.ServiceEC2
}

// ServicesInGroup lists the instances that carry the group, page by page.
func (a *EC2Adapter) ServicesInGroup(ctx context.Context, groupID string) ([]resource.Resource, error) {
	resources := []resource.Resource{}
	var nextToken *string

	for {
		output, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("instance.group-id"), Values: []string{groupID}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, a.convertInstance(instance))
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

// ServiceNamesInGroup returns instance Name tags, falling back to the instance ID.
func (a *EC2Adapter) ServiceNamesInGroup(ctx context.Context, groupID string) ([]string, error) {
	resources, err := a.ServicesInGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return adapter.Names(resources), nil
}

func (a *EC2Adapter) convertInstance(instance ec2types.Instance) resource.Resource {
	status := "unknown"
	if instance.State != nil {
		status = string(instance.State.Name)
	}
	r := a.newResource(aws.ToString(instance.InstanceId), resource.ServiceEC2, status, extractNameTag(instance.Tags))
	r.Labels = ec2Labels(instance.Tags)
	for _, group := range instance.SecurityGroups {
		r.SecurityGroups = append(r.SecurityGroups, aws.ToString(group.GroupId))
	}
	r.Attrs["instance_type"] = string(instance.InstanceType)
	r.Attrs["vpc_id"] = aws.ToString(instance.VpcId)
	r.Attrs["private_ip"] = aws.ToString(instance.PrivateIpAddress)
	return r
}

// extractNameTag extracts the Name tag from EC2 tags.
func extractNameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

func ec2Labels(tags []ec2types.Tag) map[string]string {
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}
