package cfg

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/tripdesk/internal/xerrors"
)

const minAdminTokenLen = 16

// ParameterGetter is the part of the SSM API used to resolve secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchSSMParam returns the trimmed, decrypted value of an SSM parameter.
func FetchSSMParam(ctx context.Context, client ParameterGetter, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}

// ResolveAdminToken fills AdminToken from AdminTokenSSMParam when set.
// A token fetched this way must satisfy the same length rule as -admin-token.
func (c *App) ResolveAdminToken(ctx context.Context, client ParameterGetter) error {
	if c.AdminTokenSSMParam == "" {
		return nil
	}
	tok, err := FetchSSMParam(ctx, client, c.AdminTokenSSMParam)
	if err != nil {
		return err
	}
	if len(tok) < minAdminTokenLen {
		return xerrors.Newf("SSM parameter %s: admin token must be at least %d characters", c.AdminTokenSSMParam, minAdminTokenLen)
	}
	c.AdminToken = tok
	return nil
}
