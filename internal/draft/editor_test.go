package draft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerCode() DeriverSpec {
	return DeriverSpec{
		Name:    "broker-code",
		Section: "bookingDetails",
		Sources: []string{"customBroker"},
		Derive: func(_ context.Context, in Input) (Patch, error) {
			id, _ := in.Value.(string)
			if !IsReference(id) {
				return Patch{"customBrokerCode": nil}, nil
			}
			return Patch{"customBrokerCode": "BRK-" + id[20:]}, nil
		},
	}
}

func newTestEditor(t *testing.T, tree map[string]any, saver Saver) *Editor {
	t.Helper()
	schema := testSchema()
	doc := Normalizer{Schema: schema}.Normalize(tree)
	e := NewEditor(recordID, doc, Options{
		Schema:      schema,
		Saver:       saver,
		Derivers:    []DeriverSpec{brokerCode()},
		QuietWindow: testQuiet,
	})
	require.NoError(t, e.Start())
	t.Cleanup(func() { e.Close(context.Background(), true) })
	return e
}

func section(t *testing.T, e *Editor, name string) *SectionController {
	t.Helper()
	s, err := e.Section(name)
	require.NoError(t, err)
	return s
}

func TestNumberOfContainerScenario(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	shipping := section(t, e, "shippingDetails")

	require.NoError(t, shipping.Set("numberOfContainer", 0))
	entries, err := shipping.Entries("containers")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, shipping.Set("numberOfContainer", 3))
	entries, err = shipping.Entries("containers")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.NotContains(t, entry, "containerNumber")
	}

	require.NoError(t, shipping.Set("numberOfContainer", "1"))
	require.Len(t, shipping.Pending(), 1, "shrinking asks for confirmation")
	entries, _ = shipping.Entries("containers")
	assert.Len(t, entries, 3)

	require.NoError(t, shipping.Confirm("containers"))
	entries, _ = shipping.Entries("containers")
	assert.Len(t, entries, 1)
	n, _ := shipping.Get("numberOfContainer")
	assert.EqualValues(t, 1, n)
}

func TestSectionCountInput(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	shipping := section(t, e, "shippingDetails")

	require.NoError(t, shipping.Set("numberOfContainer", 2.0))
	assert.ErrorIs(t, shipping.Set("numberOfContainer", "two"), ErrInvalidCount)
	assert.ErrorIs(t, shipping.Set("numberOfContainer", 1.5), ErrInvalidCount)

	require.NoError(t, shipping.Set("numberOfContainer", ""))
	_, ok := shipping.Get("numberOfContainer")
	assert.False(t, ok)
	entries, _ := shipping.Entries("containers")
	assert.Empty(t, entries)
}

func TestSectionRejectsDirectArrayWrites(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	shipping := section(t, e, "shippingDetails")
	_, err := shipping.AppendEntry("containers")
	require.NoError(t, err)

	assert.ErrorIs(t, shipping.Set("containers", []any{}), ErrGovernedGroup)
	assert.ErrorIs(t, shipping.Set("containers[0]", map[string]any{}), ErrGovernedGroup)
	assert.ErrorIs(t, shipping.Set("pallets[0].x", 1), ErrUnknownGroup)
	assert.ErrorIs(t, shipping.Set("containers.x", 1), ErrInvalidPath)
	assert.ErrorIs(t, shipping.Set("containers[4].containerNumber", "X"), ErrIndexOutOfRange)

	key, _ := shipping.Get("containers[0]._key")
	assert.ErrorIs(t, shipping.Set("containers[0]._key", "other"), ErrInvalidPath)
	assert.ErrorIs(t, shipping.Set("containers[0]._id", "507f1f77bcf86cd799439011"), ErrInvalidPath)
	after, _ := shipping.Get("containers[0]._key")
	assert.Equal(t, key, after)
	_, hasID := shipping.Get("containers[0]._id")
	assert.False(t, hasID)

	require.NoError(t, shipping.Set("containers[0].containerNumber", "MSCU1"))
	v, _ := shipping.Get("containers[0].containerNumber")
	assert.Equal(t, "MSCU1", v)

	_, err = e.Section("customsDetails")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestSectionNestedGroups(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	suppliers := section(t, e, "supplierDetails")

	require.NoError(t, suppliers.Set("numberOfSuppliers", 2))
	require.NoError(t, suppliers.Set("suppliers[1].numberOfInvoices", 2))
	require.NoError(t, suppliers.Set("suppliers[1].invoices[0].invoiceNumber", "INV-1"))

	invoices, err := suppliers.Entries("suppliers[1].invoices")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "INV-1", invoices[0]["invoiceNumber"])

	require.NoError(t, suppliers.RemoveEntry("suppliers[1].invoices", 0))
	n, _ := suppliers.Get("suppliers[1].numberOfInvoices")
	assert.EqualValues(t, 1, n)
}

func TestSectionTriggersDerivers(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	booking := section(t, e, "bookingDetails")

	require.NoError(t, booking.Set("customBroker", brokerID))
	v, _ := booking.Get("customBrokerCode")
	assert.Equal(t, "BRK-0abc", v)

	require.NoError(t, booking.Set("customBroker", ""))
	_, ok := booking.Get("customBrokerCode")
	assert.False(t, ok)
}

func TestEditorHydrationIsNotAutosaved(t *testing.T) {
	saver := newRecordingSaver()
	e := newTestEditor(t, map[string]any{
		"shippingDetails": map[string]any{
			"numberOfContainer": 2,
			"containers":        []any{map[string]any{"containerNumber": "A"}},
		},
	}, saver)

	time.Sleep(3 * testQuiet)
	assert.Zero(t, saver.count(), "settling on open is part of hydration")
	assert.Equal(t, StateActive, e.Autosave())

	shipping := section(t, e, "shippingDetails")
	entries, _ := shipping.Entries("containers")
	assert.Len(t, entries, 2)

	require.NoError(t, shipping.Set("containers[1].containerNumber", "B"))
	waitForSave(t, saver)
	assert.Equal(t, 1, saver.count())
}

func TestEditorCloseFlushes(t *testing.T) {
	saver := newRecordingSaver()
	schema := testSchema()
	e := NewEditor(recordID, nil, Options{Schema: schema, Saver: saver, QuietWindow: time.Hour})
	require.NoError(t, e.Start())
	require.NoError(t, e.SetIdentity("organization", orgID))
	assert.Error(t, e.SetIdentity("bookingDetails", "x"))

	e.Close(context.Background(), false)
	require.Equal(t, 1, saver.count())
	assert.Equal(t, orgID, saver.last()["organization"])

	e.Close(context.Background(), false)
	assert.Equal(t, 1, saver.count(), "close is idempotent")
}

func TestEditorFreezeRejectsEdits(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	booking := section(t, e, "bookingDetails")
	shipping := section(t, e, "shippingDetails")

	require.NoError(t, e.Freeze())
	assert.ErrorIs(t, e.Freeze(), ErrSubmitting)
	assert.ErrorIs(t, e.Err(), ErrSubmitting)
	assert.ErrorIs(t, booking.Set("vesselName", "late"), ErrSubmitting)
	_, err := shipping.SetCount("containers", intp(1))
	assert.ErrorIs(t, err, ErrSubmitting)
	_, err = shipping.AppendEntry("containers")
	assert.ErrorIs(t, err, ErrSubmitting)
	assert.ErrorIs(t, e.SetIdentity("status", "final"), ErrSubmitting)
	_, ok := booking.Get("vesselName")
	assert.False(t, ok)

	e.Thaw()
	assert.NoError(t, e.Err())
	require.NoError(t, booking.Set("vesselName", "MSC Aurora"))
}

func TestEditorRejectsEditsAfterClose(t *testing.T) {
	e := newTestEditor(t, nil, nil)
	booking := section(t, e, "bookingDetails")
	e.Close(context.Background(), true)

	assert.ErrorIs(t, booking.Set("customBroker", brokerID), ErrClosed)
	assert.ErrorIs(t, booking.Confirm("x"), ErrClosed)
	assert.ErrorIs(t, e.Freeze(), ErrClosed)
	e.Thaw()
	assert.ErrorIs(t, e.Err(), ErrClosed)
	_, ok := booking.Get("customBrokerCode")
	assert.False(t, ok)
}
