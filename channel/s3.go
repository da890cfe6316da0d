//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoCogroup.
//
// GoCogroup is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoCogroup is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoCogroup. If not, see https://www.gnu.org/licenses/.

package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr"

	"github.com/aaronlmathis/gocogroup/config"
)

// S3API is the part of the S3 client the channel uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 is a Channel storing configurations as objects of one bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
	logger logr.Logger
}

// NewS3 creates a channel over an existing client.
func NewS3(client S3API, bucket string, opts ...Option) *S3 {
	o := newOptions(opts)
	return &S3{client: client, bucket: bucket, prefix: o.prefix, logger: o.logger}
}

// S3ClientOptions configures the client built by NewS3Client.
type S3ClientOptions struct {
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
}

// NewS3Client loads the default AWS configuration, overridden by opts, and
// returns an S3 client.
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, &ChannelError{Op: "create_aws_config", Err: err}
	}
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}

// ObjectKey returns the object key holding key.
func (c *S3) ObjectKey(key string) string {
	return path.Join(c.prefix, key+fileSuffix)
}

// Publish implements Channel.
func (c *S3) Publish(ctx context.Context, cfg *config.Config) (string, error) {
	blob, err := Encode(cfg)
	if err != nil {
		return "", err
	}
	key := NewKey()
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(c.ObjectKey(key)),
		Body:            bytes.NewReader(blob),
		ContentLength:   aws.Int64(int64(len(blob))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return "", &ChannelError{Op: "put_object", Key: key, Err: err}
	}
	c.logger.V(1).Info("published configuration", "key", key, "bucket", c.bucket, "object", c.ObjectKey(key), "bytes", len(blob))
	return key, nil
}

// Fetch implements Channel.
func (c *S3) Fetch(ctx context.Context, key string) (*config.Config, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.ObjectKey(key)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, &ChannelError{Op: "fetch", Key: key, Err: ErrNotFound}
		}
		return nil, &ChannelError{Op: "get_object", Key: key, Err: err}
	}
	defer out.Body.Close()
	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &ChannelError{Op: "read_object", Key: key, Err: err}
	}
	return Decode(blob, c.logger)
}
