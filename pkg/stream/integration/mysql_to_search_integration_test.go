// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xataio/mystream/pkg/cdc/sink"
	"github.com/xataio/mystream/pkg/stream"
)

func Test_MySQLToSearch(t *testing.T) {
	skipUnlessIntegration(t)

	ctx := context.Background()
	const (
		index  = "t_user_es_integration"
		tenant = "space_cloud_tenant1"
	)
	databases := []string{"space_cloud_default", tenant}
	for _, db := range databases {
		createDatabase(t, ctx, db)
	}

	cfg := testStreamConfig(index, databases, 2001)
	require.NoError(t, stream.Init(ctx, testLogger(), cfg))
	stop := runStream(t, cfg)
	defer stop()

	client := newSearchClient(t)

	tests := []struct {
		name  string
		query func()

		validation func() bool
	}{
		{
			name: "same key in two sources",
			query: func() {
				execQuery(t, ctx, "space_cloud_default", "INSERT INTO t_user (id, username, email) VALUES (42, 'alice', 'alice@default.io')")
				execQuery(t, ctx, tenant, "INSERT INTO t_user (id, username, email) VALUES (42, 'bob', 'bob@tenant1.io')")
			},
			validation: func() bool {
				defaultDoc := getDocument(t, ctx, client, index, "space_cloud_default", "42")
				tenantDoc := getDocument(t, ctx, client, index, tenant, "42")
				if defaultDoc == nil || tenantDoc == nil || !defaultDoc.Found || !tenantDoc.Found {
					return false
				}
				require.Equal(t, "alice", defaultDoc.Source["username"])
				require.Equal(t, "space_cloud_default", defaultDoc.Source[sink.SourceDBField])
				require.Equal(t, "bob", tenantDoc.Source["username"])
				require.Equal(t, tenant, tenantDoc.Source[sink.SourceDBField])
				return true
			},
		},
		{
			name: "update",
			query: func() {
				execQuery(t, ctx, tenant, "UPDATE t_user SET email = 'bob@new.io' WHERE id = 42")
			},
			validation: func() bool {
				doc := getDocument(t, ctx, client, index, tenant, "42")
				if doc == nil || !doc.Found || doc.Source["email"] != "bob@new.io" {
					return false
				}
				// the other source row is untouched
				defaultDoc := getDocument(t, ctx, client, index, "space_cloud_default", "42")
				require.Equal(t, "alice@default.io", defaultDoc.Source["email"])
				return true
			},
		},
		{
			name: "delete",
			query: func() {
				execQuery(t, ctx, "space_cloud_default", "DELETE FROM t_user WHERE id = 42")
			},
			validation: func() bool {
				doc := getDocument(t, ctx, client, index, "space_cloud_default", "42")
				if doc == nil || doc.Found {
					return false
				}
				tenantDoc := getDocument(t, ctx, client, index, tenant, "42")
				require.True(t, tenantDoc.Found)
				return true
			},
		},
		{
			name:  "checkpoints committed",
			query: func() {},
			validation: func() bool {
				return committedPosition(t, ctx, "space_cloud_default") && committedPosition(t, ctx, tenant)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.query()
			require.Eventually(t, tc.validation, eventualTimeout, eventualTick)
		})
	}
}

func Test_MySQLToSearch_Restart(t *testing.T) {
	skipUnlessIntegration(t)

	ctx := context.Background()
	const (
		index = "t_user_es_restart"
		db    = "space_cloud_restart"
	)
	createDatabase(t, ctx, db)

	cfg := testStreamConfig(index, []string{db}, 3001)
	require.NoError(t, stream.Init(ctx, testLogger(), cfg))
	client := newSearchClient(t)

	stop := runStream(t, cfg)
	execQuery(t, ctx, db, "INSERT INTO t_user (id, username) VALUES (1, 'carol'), (2, 'dave')")
	execQuery(t, ctx, db, "DELETE FROM t_user WHERE id = 1")
	require.Eventually(t, func() bool {
		doc := getDocument(t, ctx, client, index, db, "2")
		return doc != nil && doc.Found && committedPosition(t, ctx, db)
	}, eventualTimeout, eventualTick)
	stop()

	// changes made while the pipeline is down are picked up from the
	// committed position
	execQuery(t, ctx, db, "UPDATE t_user SET username = 'dan' WHERE id = 2")

	stop = runStream(t, cfg)
	defer stop()

	require.Eventually(t, func() bool {
		doc := getDocument(t, ctx, client, index, db, "2")
		return doc != nil && doc.Found && doc.Source["username"] == "dan"
	}, eventualTimeout, eventualTick)

	// the deleted row is not resurrected by the replay
	doc := getDocument(t, ctx, client, index, db, "1")
	require.NotNil(t, doc)
	require.False(t, doc.Found)
}
