package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactRepository_ListUndeliveredForCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM campaign_contacts cc JOIN contacts c ON c.id = cc.contact_id LEFT JOIN delivery_attempts da`).
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "phone"}).
			AddRow("k1", "u1", "Ann", "7603977807").
			AddRow("k2", "u1", "Bo", "+17603977808"))

	repo := &ContactRepository{DB: db}
	contacts, err := repo.ListUndeliveredForCampaign(context.Background(), "c1", "s1")

	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "k1", contacts[0].ID)
	assert.Equal(t, "+17603977808", contacts[1].Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_GetByIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM contacts WHERE id = ANY\(\$1\) AND owner_id = \$2`).
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "phone"}).
			AddRow("k1", "u1", "Ann", "7603977807"))

	repo := &ContactRepository{DB: db}
	contacts, err := repo.GetByIDs(context.Background(), "u1", []string{"k1", "k-missing"})

	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Ann", contacts[0].Name)
}

func TestContactRepository_GetByIDs_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := &ContactRepository{DB: db}
	contacts, err := repo.GetByIDs(context.Background(), "u1", nil)

	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
