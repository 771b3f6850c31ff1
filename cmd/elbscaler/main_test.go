package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/cuemby/elbscaler/pkg/config"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("config", "", "")
	addOverrideFlags(cmd)
	cmd.SetArgs(args)
	_ = cmd.Execute()
	return cmd
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elbscaler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mesos:\n  master: http://file:5050\naws:\n  load_balancer_name: from-file\n"), 0o600))

	cmd := newTestCommand("--config", path, "--load-balancer", "from-flag", "--log-json")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "http://file:5050", cfg.Mesos.Master)
	assert.Equal(t, "from-flag", cfg.AWS.LoadBalancerName)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "127.0.0.1:9090", cfg.API.HTTPAddr, "unset flags keep file and default values")
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cmd := newTestCommand("--load-balancer", "")
	_, err := loadConfig(cmd)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

type stubEC2 struct {
	out *ec2.DescribeInstancesOutput
	err error
}

func (s *stubEC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return s.out, s.err
}

func TestBuildResolver(t *testing.T) {
	client := &stubEC2{out: &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
		Instances: []ec2types.Instance{{InstanceId: aws.String("i-1"), PrivateDnsName: aws.String("h1")}},
	}}}}

	r, err := buildResolver(context.Background(), client, map[string]string{"h2": "i-2"})
	require.NoError(t, err)
	id, ok := r.Resolve("h1")
	assert.True(t, ok)
	assert.Equal(t, "i-1", id)
	id, ok = r.Resolve("h2")
	assert.True(t, ok)
	assert.Equal(t, "i-2", id)
}

func TestBuildResolverFallsBackToHostMap(t *testing.T) {
	client := &stubEC2{err: errors.New("UnauthorizedOperation")}

	_, err := buildResolver(context.Background(), client, nil)
	require.Error(t, err)

	r, err := buildResolver(context.Background(), client, map[string]string{"h1": "i-1"})
	require.NoError(t, err)
	_, ok := r.Resolve("h1")
	assert.True(t, ok)
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Autoscale.MinReplicas = 3

	p := policyFromConfig(cfg)
	assert.Equal(t, types.Resources{CPUs: 1, MemMB: 1024}, p.Reservation)
	assert.Equal(t, 3, p.MinReplicas)
	assert.Equal(t, 1500.0, p.TargetPerBackend)
}

func TestPrintDecisions(t *testing.T) {
	var buf bytes.Buffer
	printDecisions(&buf, nil)
	assert.Equal(t, "No decisions recorded\n", buf.String())

	buf.Reset()
	printDecisions(&buf, []types.ScaleDecision{{
		Time:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RequestSum: 1500,
		Previous:   3,
		Desired:    1,
		Counted:    3,
		Victims:    []int{0, 1},
	}})
	assert.Contains(t, buf.String(), "2024-05-01 12:00:00")
	assert.Contains(t, buf.String(), "0,1")
}
