package html

// html is responsible for turning the HTML body of an email into a plain
// text rendition suitable for a text/plain alternative part. It's not
// concerned with the lower-level logic involved in sending the email, so the
// generated text can be used for other purposes as well.
