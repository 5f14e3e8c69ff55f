/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policystatuscache

import (
	"encoding/json"
	"time"

	"github.com/trustbloc/shield/pkg/ledger"
)

type redisDocument struct {
	ExpireAt time.Time            `json:"expireAt"`
	Record   *ledger.PolicyRecord `json:"record"`
}

func (d *redisDocument) MarshalBinary() ([]byte, error) {
	return json.Marshal(d)
}

func (d *redisDocument) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, d)
}
