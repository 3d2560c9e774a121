package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sgmap/pkg/resource"
)

func TestNetwork_NetworkInterfaces(t *testing.T) {
	mock := &mockEC2Client{
		DescribeNetworkInterfacesFunc: func(_ context.Context, params *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
			require.Len(t, params.Filters, 1)
			assert.Equal(t, "group-id", aws.ToString(params.Filters[0].Name))
			assert.Equal(t, []string{"sg-1"}, params.Filters[0].Values)

			return &ec2.DescribeNetworkInterfacesOutput{
				NetworkInterfaces: []types.NetworkInterface{
					{
						NetworkInterfaceId: aws.String("eni-1"),
						Description:        aws.String("RDSNetworkInterface"),
						InterfaceType:      types.NetworkInterfaceTypeInterface,
						Status:             types.NetworkInterfaceStatusInUse,
						VpcId:              aws.String("vpc-1"),
						RequesterManaged:   aws.Bool(true),
						Groups: []types.GroupIdentifier{
							{GroupId: aws.String("sg-1"), GroupName: aws.String("db")},
						},
						TagSet: []types.Tag{{Key: aws.String("team"), Value: aws.String("data")}},
					},
					{
						NetworkInterfaceId: aws.String("eni-2"),
						Attachment:         &types.NetworkInterfaceAttachment{InstanceId: aws.String("i-9")},
					},
				},
			}, nil
		},
	}

	ifaces, err := NewNetwork(mock).NetworkInterfaces(context.Background(), "sg-1")

	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	assert.Equal(t, "eni-1", ifaces[0].ID)
	assert.Equal(t, "RDSNetworkInterface", ifaces[0].Description)
	assert.Equal(t, "interface", ifaces[0].InterfaceType)
	assert.True(t, ifaces[0].RequesterManaged)
	assert.Equal(t, []resource.GroupRef{{ID: "sg-1", Name: "db"}}, ifaces[0].Groups)
	assert.Equal(t, "data", ifaces[0].Labels["team"])

	assert.Equal(t, "i-9", ifaces[1].InstanceID)
}

func TestNetwork_NetworkInterfacesEmpty(t *testing.T) {
	ifaces, err := NewNetwork(&mockEC2Client{}).NetworkInterfaces(context.Background(), "sg-empty")

	require.NoError(t, err)
	assert.NotNil(t, ifaces)
	assert.Empty(t, ifaces)
}

func TestNetwork_NetworkInterfacesError(t *testing.T) {
	mock := &mockEC2Client{
		DescribeNetworkInterfacesFunc: func(_ context.Context, _ *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
			return nil, errors.New("unauthorized")
		},
	}

	_, err := NewNetwork(mock).NetworkInterfaces(context.Background(), "sg-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe network interfaces")
}

func TestNetwork_SecurityGroups(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		wantFilters int
	}{
		{"explicit ids", []string{"sg-1", "sg-2"}, 1},
		{"all groups", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockEC2Client{
				DescribeSecurityGroupsFunc: func(_ context.Context, params *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
					assert.Len(t, params.Filters, tt.wantFilters)
					return &ec2.DescribeSecurityGroupsOutput{
						SecurityGroups: []types.SecurityGroup{
							{GroupId: aws.String("sg-1"), GroupName: aws.String("web"), VpcId: aws.String("vpc-1")},
						},
					}, nil
				},
			}

			groups, err := NewNetwork(mock).SecurityGroups(context.Background(), tt.ids)

			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, "sg-1", groups[0].ID)
			assert.Equal(t, "web", groups[0].Name)
		})
	}
}

func TestNetwork_SecurityGroupsPagination(t *testing.T) {
	mock := &mockEC2Client{
		DescribeSecurityGroupsFunc: func(_ context.Context, params *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
			if params.NextToken == nil {
				return &ec2.DescribeSecurityGroupsOutput{
					SecurityGroups: []types.SecurityGroup{{GroupId: aws.String("sg-1")}},
					NextToken:      aws.String("next"),
				}, nil
			}
			return &ec2.DescribeSecurityGroupsOutput{
				SecurityGroups: []types.SecurityGroup{{GroupId: aws.String("sg-2")}},
			}, nil
		},
	}

	groups, err := NewNetwork(mock).SecurityGroups(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "sg-2", groups[1].ID)
}

func TestNetwork_EnabledRegions(t *testing.T) {
	mock := &mockEC2Client{
		DescribeRegionsFunc: func(_ context.Context, params *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
			assert.False(t, aws.ToBool(params.AllRegions))
			return &ec2.DescribeRegionsOutput{
				Regions: []types.Region{
					{RegionName: aws.String("us-east-1")},
					{RegionName: aws.String("eu-west-1")},
				},
			}, nil
		},
	}

	regions, err := NewNetwork(mock).EnabledRegions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)
}
