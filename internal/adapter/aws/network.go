package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// Network lists the EC2 networking objects the resolver walks.
type Network struct {
	client EC2API
}

// NewNetwork creates a Network over an EC2 client.
func NewNetwork(client EC2API) *Network {
	return &Network{client: client}
}

// NetworkInterfaces returns every ENI governed by the group.
func (n *Network) NetworkInterfaces(ctx context.Context, groupID string) ([]resource.NetworkInterface, error) {
	ifaces := []resource.NetworkInterface{}
	var nextToken *string

	for {
		output, err := n.client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("group-id"), Values: []string{groupID}},
			},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe network interfaces: %w", err)
		}

		for _, eni := range output.NetworkInterfaces {
			ifaces = append(ifaces, convertNetworkInterface(eni))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return ifaces, nil
}

func convertNetworkInterface(eni ec2types.NetworkInterface) resource.NetworkInterface {
	iface := resource.NetworkInterface{
		ID:               aws.ToString(eni.NetworkInterfaceId),
		Description:      aws.ToString(eni.Description),
		InterfaceType:    string(eni.InterfaceType),
		Status:           string(eni.Status),
		VpcID:            aws.ToString(eni.VpcId),
		RequesterID:      aws.ToString(eni.RequesterId),
		RequesterManaged: aws.ToBool(eni.RequesterManaged),
		Labels:           ec2Labels(eni.TagSet),
	}
	if eni.Attachment != nil {
		iface.InstanceID = aws.ToString(eni.Attachment.InstanceId)
		iface.InstanceOwnerID = aws.ToString(eni.Attachment.InstanceOwnerId)
	}
	for _, group := range eni.Groups {
		iface.Groups = append(iface.Groups, resource.GroupRef{
			ID:   aws.ToString(group.GroupId),
			Name: aws.ToString(group.GroupName),
		})
	}
	return iface
}

// SecurityGroups describes the given groups, or every group in the region when ids is empty.
func (n *Network) SecurityGroups(ctx context.Context, ids []string) ([]resource.SecurityGroup, error) {
	groups := []resource.SecurityGroup{}
	var nextToken *string

	input := &ec2.DescribeSecurityGroupsInput{}
	if len(ids) > 0 {
		input.Filters = []ec2types.Filter{
			{Name: aws.String("group-id"), Values: ids},
		}
	}

	for {
		input.NextToken = nextToken
		output, err := n.client.DescribeSecurityGroups(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe security groups: %w", err)
		}

		for _, sg := range output.SecurityGroups {
			groups = append(groups, resource.SecurityGroup{
				ID:          aws.ToString(sg.GroupId),
				Name:        aws.ToString(sg.GroupName),
				Description: aws.ToString(sg.Description),
				VpcID:       aws.ToString(sg.VpcId),
				Labels:      ec2Labels(sg.Tags),
			})
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return groups, nil
}

// EnabledRegions returns the regions enabled for the account.
func (n *Network) EnabledRegions(ctx context.Context) ([]string, error) {
	output, err := n.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	regions := make([]string, 0, len(output.Regions))
	for _, r := range output.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	return regions, nil
}
