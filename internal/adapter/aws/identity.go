package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"
)

// Identity is the account the credentials resolve to.
type Identity struct {
	AccountID string
	Alias     string
}

// ResolveIdentity looks up the account ID and, best effort, its alias.
func ResolveIdentity(ctx context.Context, stsClient STSAPI, iamClient IAMAPI) (Identity, error) {
	output, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}

	id := Identity{AccountID: aws.ToString(output.Account)}
	if iamClient == nil {
		return id, nil
	}

	aliases, err := iamClient.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
	if err != nil {
		log.Warn().Err(err).Str("account", id.AccountID).Msg("account alias lookup failed")
		return id, nil
	}
	if len(aliases.AccountAliases) > 0 {
		id.Alias = aliases.AccountAliases[0]
	}
	return id, nil
}
