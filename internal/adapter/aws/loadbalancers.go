package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

var _ adapter.Preloadable = (*ELBAdapter)(nil)

// ELBAdapter indexes application and network load balancers by security group.
type ELBAdapter struct {
	*preloaded
	scope
	client ELBAPI
}

// NewELBAdapter creates the ELBv2 adapter.
func NewELBAdapter(client ELBAPI, region, accountID string) *ELBAdapter {
	a := &ELBAdapter{scope: scope{region: region, accountID: accountID}, client: client}
	a.preloaded = newPreloaded(resource.ServiceELBv2, a.scan)
	return a
}

func (a *ELBAdapter) scan(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	var marker *string

	for {
		output, err := a.client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}

		for _, lb := range output.LoadBalancers {
			resources = append(resources, a.convertLoadBalancer(lb))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return resources, nil
}

func (a *ELBAdapter) convertLoadBalancer(lb elbtypes.LoadBalancer) resource.Resource {
	status := "unknown"
	if lb.State != nil {
		status = string(lb.State.Code)
	}
	r := a.newResource(aws.ToString(lb.LoadBalancerArn), resource.ServiceELBv2, status, aws.ToString(lb.LoadBalancerName))
	r.SecurityGroups = groupIDs(nil, lb.SecurityGroups)
	r.Attrs["type"] = string(lb.Type)
	r.Attrs["scheme"] = string(lb.Scheme)
	r.Attrs["vpc_id"] = aws.ToString(lb.VpcId)
	r.Attrs["dns_name"] = aws.ToString(lb.DNSName)
	return r
}
