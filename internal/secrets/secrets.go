// Package secrets resolves startup secrets from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Options struct {
	Logger log.Logger

	// Client overrides the SSM client; a default-config client is built
	// when nil.
	Client SSMAPI

	// AWSConfig is used to build the client when Client is nil (loads the
	// default chain if nil).
	AWSConfig *aws.Config
}

type Resolver struct {
	client SSMAPI
	logger log.Logger
}

func NewResolver(ctx context.Context, opts Options) (*Resolver, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = ssm.NewFromConfig(awsCfg)
	}
	return &Resolver{client: client, logger: opts.Logger}, nil
}

// Parameter returns the decrypted, whitespace-trimmed value of name.
func (r *Resolver) Parameter(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("SSM parameter name is required")
	}
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	r.logger.Debug(ctx, "resolved SSM parameter", "name", name, "version", out.Parameter.Version)
	return v, nil
}

// DatabaseURL picks the database URL. An explicit value wins; otherwise the
// SSM parameter is read when named; otherwise "" (caller default applies).
func (r *Resolver) DatabaseURL(ctx context.Context, explicit, param string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if param == "" {
		return "", nil
	}
	return r.Parameter(ctx, param)
}
