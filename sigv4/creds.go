// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package sigv4

import (
	"errors"
	"os"
)

// ErrMissingCredentials is returned by EnvCreds when one or more of
// the three required environment variables is unset. Dispatcher
// construction treats this as a fatal startup error (see the package
// doc for dispatch.New) rather than something to retry.
var ErrMissingCredentials = errors.New("sigv4: AWS_REGION, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must all be set")

// EnvCreds loads credentials strictly from the three environment
// variables the signer consults: AWS_REGION, AWS_ACCESS_KEY_ID and
// AWS_SECRET_ACCESS_KEY. Unlike the AWS SDK's "do what I mean"
// credential chain (config files, IMDS, SSO, ...), EnvCreds looks in
// exactly one place, so a missing variable is unambiguous.
func EnvCreds() (id, secret, region string, err error) {
	id = os.Getenv("AWS_ACCESS_KEY_ID")
	secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	region = os.Getenv("AWS_REGION")
	if id == "" || secret == "" || region == "" {
		return "", "", "", ErrMissingCredentials
	}
	return id, secret, region, nil
}

// EnvKey derives a SigningKey for Lambda invocations from EnvCreds.
func EnvKey() (*SigningKey, error) {
	id, secret, region, err := EnvCreds()
	if err != nil {
		return nil, err
	}
	return DeriveKey(id, secret, region), nil
}
