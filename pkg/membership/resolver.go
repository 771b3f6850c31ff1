package membership

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// Resolver maps a task host to its load balancer backend identifier
type Resolver interface {
	Resolve(host string) (string, bool)
}

// StaticResolver is a fixed host to backend map
type StaticResolver map[string]string

// Resolve implements Resolver
func (m StaticResolver) Resolve(host string) (string, bool) {
	id, ok := m[host]
	return id, ok && id != ""
}

// Merge returns a new resolver with overrides applied on top of m
func (m StaticResolver) Merge(overrides map[string]string) StaticResolver {
	out := make(StaticResolver, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// EC2API is the subset of the EC2 client used for discovery
type EC2API interface {
	ec2.DescribeInstancesAPIClient
}

// DiscoverEC2 builds a snapshot of instance private DNS names and private
// IPs to instance ids. The snapshot is taken once; instances started later
// are not resolvable until the process restarts.
func DiscoverEC2(ctx context.Context, client EC2API) (StaticResolver, error) {
	resolver := make(StaticResolver)

	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				id := aws.ToString(inst.InstanceId)
				if id == "" {
					continue
				}
				if name := aws.ToString(inst.PrivateDnsName); name != "" {
					resolver[name] = id
				}
				if ip := aws.ToString(inst.PrivateIpAddress); ip != "" {
					resolver[ip] = id
				}
			}
		}
	}

	return resolver, nil
}
