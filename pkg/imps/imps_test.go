package imps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

func testRequestor(t *testing.T, handler http.Handler) *network.Requestor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	transport := network.NewTransport(0)
	t.Cleanup(transport.Close)
	return network.NewRequestor(transport, server.URL+"/", network.StaticHeaders{})
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()
	reg := addon.NewRegistry()
	RegisterAll(reg)

	assert.Equal(t, []string{"BOA", "BOX", "DROPBOX", "OWNCLOUD", "ZENODO", "ZOTERO"}, reg.Names())

	box, err := reg.Lookup("BOX")
	require.NoError(t, err)
	assert.Equal(t, NumberBox, box.Number)
	assert.ElementsMatch(t,
		[]string{"get_item_info", "list_root_items", "list_child_items", "download"},
		operationNames(box.ImplementedOperations()))

	dropbox, err := reg.Lookup("DROPBOX")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"get_item_info", "list_root_items", "list_child_items", "download"},
		operationNames(dropbox.ImplementedOperations()))

	owncloud, err := reg.Lookup("OWNCLOUD")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"get_item_info", "list_root_items", "list_child_items"},
		operationNames(owncloud.ImplementedOperations()))

	zotero, err := reg.Lookup("ZOTERO")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"get_item_info", "list_root_collections", "list_collection_items"},
		operationNames(zotero.ImplementedOperations()))

	boa, err := reg.Lookup("BOA")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"submit_job", "get_job_info"},
		operationNames(boa.ImplementedOperations()))

	zenodo, err := reg.Lookup("ZENODO")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"get_item_info", "build_url"},
		operationNames(zenodo.ImplementedOperations()))
}

func operationNames(ops []addon.OperationDeclaration) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	return names
}

func TestBoxListChildItems(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/folders/0/items", r.URL.Path)
		require.Equal(t, "20", r.URL.Query().Get("offset"))
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"total_count": 45,
			"entries": [
				{"id": "101", "type": "folder", "name": "docs"},
				{"id": "102", "type": "file", "name": "notes.txt"}
			]
		}`)
	}))

	imp, err := newBox(addon.Instantiation{Network: requestor})
	require.NoError(t, err)
	box := imp.(*boxImp)

	sample, err := box.ListRootItems(context.Background(), "20|20")
	require.NoError(t, err)

	require.Len(t, sample.Items, 2)
	assert.Equal(t, addon.Item{ItemID: "101", ItemName: "docs", ItemType: addon.ItemTypeFolder}, sample.Items[0])
	assert.Equal(t, addon.Item{ItemID: "102", ItemName: "notes.txt", ItemType: addon.ItemTypeFile}, sample.Items[1])
	require.NotNil(t, sample.TotalCount)
	assert.Equal(t, 45, *sample.TotalCount)
	assert.Equal(t, "20|20", sample.ThisSampleCursor)
	require.NotNil(t, sample.NextSampleCursor)
	assert.Equal(t, "40|20", *sample.NextSampleCursor)
	require.NotNil(t, sample.PrevSampleCursor)
	assert.Equal(t, "0|20", *sample.PrevSampleCursor)
}

func TestBoxGetItemInfoFallsBackToFile(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/folders/55":
			w.WriteHeader(http.StatusNotFound)
		case "/files/55":
			fmt.Fprint(w, `{"id": "55", "type": "file", "name": "paper.pdf"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	imp, _ := newBox(addon.Instantiation{Network: requestor})
	item, err := imp.(*boxImp).GetItemInfo(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, addon.Item{ItemID: "55", ItemName: "paper.pdf", ItemType: addon.ItemTypeFile}, item)
}

func TestBoxDownloadURL(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("download must not call the provider, got %s", r.URL.Path)
	}))

	imp, _ := newBox(addon.Instantiation{Network: requestor})
	redirect, err := imp.(*boxImp).DownloadURL(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, requestor.PrefixURL()+"files/55/content", redirect.URL)
}

func TestBoxProviderErrorStatus(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	imp, _ := newBox(addon.Instantiation{Network: requestor})
	_, err := imp.(*boxImp).ListRootItems(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, gverrors.KindProviderError, gverrors.KindOf(err))
}

func TestDropboxMarkerPagination(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/files/list_folder":
			require.Equal(t, "/docs", body["path"])
			fmt.Fprint(w, `{
				"entries": [{".tag": "folder", "name": "drafts", "path_display": "/docs/drafts"}],
				"cursor": "CUR1",
				"has_more": true
			}`)
		case "/files/list_folder/continue":
			require.Equal(t, "CUR1", body["cursor"])
			fmt.Fprint(w, `{
				"entries": [{".tag": "file", "name": "final.txt", "path_display": "/docs/final.txt"}],
				"cursor": "CUR2",
				"has_more": false
			}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	imp, err := newDropbox(addon.Instantiation{Network: requestor})
	require.NoError(t, err)
	dropbox := imp.(*dropboxImp)

	first, err := dropbox.ListChildItems(context.Background(), "/docs", "", nil)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, addon.ItemTypeFolder, first.Items[0].ItemType)
	require.NotNil(t, first.NextSampleCursor)
	assert.Equal(t, "CUR1", *first.NextSampleCursor)
	assert.Nil(t, first.PrevSampleCursor)

	second, err := dropbox.ListChildItems(context.Background(), "/docs", *first.NextSampleCursor, nil)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "/docs/final.txt", second.Items[0].ItemID)
	assert.Nil(t, second.NextSampleCursor, "last page has no next cursor")
}

func TestDropboxDownloadURL(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/get_temporary_link", r.URL.Path)
		fmt.Fprint(w, `{"link": "https://dl.dropboxusercontent.example/tmp/abc"}`)
	}))

	imp, _ := newDropbox(addon.Instantiation{Network: requestor})
	redirect, err := imp.(*dropboxImp).DownloadURL(context.Background(), "/docs/final.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.dropboxusercontent.example/tmp/abc", redirect.URL)
}

func TestDropboxRootItemInfo(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("root info must not call the provider, got %s", r.URL.Path)
	}))

	imp, _ := newDropbox(addon.Instantiation{Network: requestor})
	item, err := imp.(*dropboxImp).GetItemInfo(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, addon.ItemTypeFolder, item.ItemType)
}

const owncloudMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/dav/files/admin/Documents/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:displayname>Documents</d:displayname>
        <d:resourcetype><d:collection/></d:resourcetype>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/files/admin/Documents/Reports/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:displayname>Reports</d:displayname>
        <d:resourcetype><d:collection/></d:resourcetype>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/files/admin/Documents/plan.txt</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:displayname>plan.txt</d:displayname>
        <d:resourcetype/>
      </d:prop>
    </d:propstat>
  </d:response>
</d:multistatus>`

func owncloudRequestor(t *testing.T) *network.Requestor {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, network.PROPFIND, r.Method)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, owncloudMultistatus)
	}))
	t.Cleanup(server.Close)
	transport := network.NewTransport(0)
	t.Cleanup(transport.Close)
	creds := credentials.UsernamePassword{Username: "admin", Password: "hunter2"}
	return network.NewRequestor(transport,
		server.URL+"/remote.php/dav/files/admin/",
		network.StaticHeaders(creds.AuthHeaders()))
}

func TestOwnCloudListChildItems(t *testing.T) {
	t.Parallel()
	imp, err := newOwnCloud(addon.Instantiation{Network: owncloudRequestor(t)})
	require.NoError(t, err)
	owncloud := imp.(*owncloudImp)

	sample, err := owncloud.ListChildItems(context.Background(), "Documents/", "", nil)
	require.NoError(t, err)

	require.Len(t, sample.Items, 2, "the folder's own entry is dropped")
	assert.Equal(t, addon.Item{ItemID: "Documents/Reports/", ItemName: "Reports", ItemType: addon.ItemTypeFolder}, sample.Items[0])
	assert.Equal(t, addon.Item{ItemID: "Documents/plan.txt", ItemName: "plan.txt", ItemType: addon.ItemTypeFile}, sample.Items[1])
	require.NotNil(t, sample.TotalCount)
	assert.Equal(t, 2, *sample.TotalCount)
	assert.Nil(t, sample.NextSampleCursor)
}

func TestOwnCloudListFiltersAndPaginatesLocally(t *testing.T) {
	t.Parallel()
	imp, _ := newOwnCloud(addon.Instantiation{Network: owncloudRequestor(t)})
	owncloud := imp.(*owncloudImp)

	folder := addon.ItemTypeFolder
	sample, err := owncloud.ListChildItems(context.Background(), "Documents/", "0|1", &folder)
	require.NoError(t, err)

	require.Len(t, sample.Items, 1)
	assert.Equal(t, "Reports", sample.Items[0].ItemName)
	require.NotNil(t, sample.TotalCount)
	assert.Equal(t, 1, *sample.TotalCount)
}

func TestOwnCloudGetItemInfo(t *testing.T) {
	t.Parallel()
	imp, _ := newOwnCloud(addon.Instantiation{Network: owncloudRequestor(t)})
	item, err := imp.(*owncloudImp).GetItemInfo(context.Background(), "Documents/")
	require.NoError(t, err)
	assert.Equal(t, "Documents", item.ItemName)
	assert.Equal(t, addon.ItemTypeFolder, item.ItemType)
}

func zoteroInstantiation(requestor *network.Requestor) addon.Instantiation {
	return addon.Instantiation{
		Network:     requestor,
		Credentials: credentials.OAuth1{Token: "zotero-api-key", TokenSecret: "12345"},
		Config:      addon.Config{ExternalAccountID: "12345"},
	}
}

func TestZoteroListRootCollections(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/12345/collections/top", r.URL.Path)
		require.Equal(t, "zotero-api-key", r.Header.Get("Zotero-API-Key"))
		require.Equal(t, "0", r.URL.Query().Get("start"))
		w.Header().Set("Total-Results", "30")
		fmt.Fprint(w, `[
			{"key": "COLL1", "data": {"name": "Thesis"}},
			{"key": "COLL2", "data": {"name": "Sideline"}}
		]`)
	}))

	imp, err := newZotero(zoteroInstantiation(requestor))
	require.NoError(t, err)

	sample, err := imp.(*zoteroImp).ListRootCollections(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sample.Items, 2)
	assert.Equal(t, addon.ItemTypeCollection, sample.Items[0].ItemType)
	require.NotNil(t, sample.TotalCount)
	assert.Equal(t, 30, *sample.TotalCount)
	require.NotNil(t, sample.NextSampleCursor)
	assert.Equal(t, "20|20", *sample.NextSampleCursor)
}

func TestZoteroListCollectionItems(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/12345/collections/COLL1/items/top", r.URL.Path)
		require.Equal(t, "csljson", r.URL.Query().Get("include"))
		w.Header().Set("Total-Results", "1")
		fmt.Fprint(w, `[
			{"key": "ITEM1", "csljson": {"title": "A Study of Gravy", "type": "article-journal"}}
		]`)
	}))

	imp, _ := newZotero(zoteroInstantiation(requestor))
	sample, err := imp.(*zoteroImp).ListCollectionItems(context.Background(), "COLL1", "", nil)
	require.NoError(t, err)
	require.Len(t, sample.Items, 1)
	item := sample.Items[0]
	assert.Equal(t, "ITEM1", item.ItemID)
	assert.Equal(t, "A Study of Gravy", item.ItemName)
	assert.Equal(t, addon.ItemTypeDocument, item.ItemType)
	assert.Equal(t, "article-journal", item.CSL["type"])
}

func TestZoteroListSubcollections(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/12345/collections/COLL1/collections", r.URL.Path)
		w.Header().Set("Total-Results", "1")
		fmt.Fprint(w, `[{"key": "COLL3", "data": {"name": "Archive"}}]`)
	}))

	imp, _ := newZotero(zoteroInstantiation(requestor))
	collection := addon.ItemTypeCollection
	sample, err := imp.(*zoteroImp).ListCollectionItems(context.Background(), "COLL1", "", &collection)
	require.NoError(t, err)
	require.Len(t, sample.Items, 1)
	assert.Equal(t, addon.ItemTypeCollection, sample.Items[0].ItemType)
}

func TestZoteroRejectsWrongCredentialFormat(t *testing.T) {
	t.Parallel()
	_, err := newZotero(addon.Instantiation{
		Credentials: credentials.AccessToken{Token: "pat"},
	})
	require.Error(t, err)
	assert.Equal(t, gverrors.KindInvalidCredentials, gverrors.KindOf(err))
}

func TestBoaJobLifecycle(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "o.out(counts)", body["source"])
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": "job-9", "name": "counts", "status": "QUEUED"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-9":
			fmt.Fprint(w, `{"id": "job-9", "name": "counts", "status": "FINISHED", "output": "42"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	imp, err := newBoa(addon.Instantiation{Network: requestor})
	require.NoError(t, err)
	boa := imp.(*boaImp)

	submitted, err := boa.SubmitJob(context.Background(), "counts", "o.out(counts)")
	require.NoError(t, err)
	assert.Equal(t, "job-9", submitted.JobID)
	assert.Equal(t, "QUEUED", submitted.JobStatus)

	info, err := boa.GetJobInfo(context.Background(), "job-9")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", info.JobStatus)
	assert.Equal(t, "42", info.Output)
}

func TestZenodoRecord(t *testing.T) {
	t.Parallel()
	requestor := testRequestor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/records/777", r.URL.Path)
		fmt.Fprint(w, `{
			"metadata": {"title": "Gravy Dataset"},
			"links": {"self_html": "https://zenodo.example/records/777"}
		}`)
	}))

	imp, err := newZenodo(addon.Instantiation{
		Network: requestor,
		Config:  addon.Config{ExternalWebURL: "https://zenodo.example/"},
	})
	require.NoError(t, err)
	zenodo := imp.(*zenodoImp)

	item, err := zenodo.GetItemInfo(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "Gravy Dataset", item.ItemName)
	assert.Equal(t, "https://zenodo.example/records/777", item.ItemLink)

	redirect, err := zenodo.BuildItemURL(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "https://zenodo.example/records/777", redirect.URL)
}
